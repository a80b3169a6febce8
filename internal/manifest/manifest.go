// Package manifest reads the spreadsheet of named outline links that drives
// bulk downloads.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/fetcher"
	"github.com/sells-group/spectral-cli/internal/model"
)

// Default column headers of the vineyard outline export.
const (
	DefaultNameColumn = "Name"
	DefaultLinkColumn = "link_kml_outline"
)

// Options selects the sheet and columns to read.
type Options struct {
	Sheet      string
	NameColumn string
	LinkColumn string
}

func (o Options) withDefaults() Options {
	if o.NameColumn == "" {
		o.NameColumn = DefaultNameColumn
	}
	if o.LinkColumn == "" {
		o.LinkColumn = DefaultLinkColumn
	}
	return o
}

// Row is one usable manifest entry. Line is the 1-based spreadsheet row.
type Row struct {
	Line int
	Name string
	Link string
}

// Load reads the manifest at path. Rows with a blank or NaN link are skipped
// with a warning.
func Load(path string, opts Options) ([]Row, error) {
	opts = opts.withDefaults()

	records, err := readRecords(path, opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("manifest: %s has no header row", filepath.Base(path))
	}

	nameCol, linkCol := -1, -1
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		switch {
		case strings.EqualFold(h, opts.NameColumn):
			nameCol = i
		case strings.EqualFold(h, opts.LinkColumn):
			linkCol = i
		}
	}
	if nameCol < 0 {
		return nil, eris.Errorf("manifest: column %q not found", opts.NameColumn)
	}
	if linkCol < 0 {
		return nil, eris.Errorf("manifest: column %q not found", opts.LinkColumn)
	}

	log := zap.L().With(zap.String("component", "manifest"), zap.String("path", path))

	var rows []Row
	for i, rec := range records[1:] {
		line := i + 2
		name := cell(rec, nameCol)
		link := cell(rec, linkCol)
		if name == "" && link == "" {
			continue
		}
		if IsMissing(link) {
			log.Warn("skipping row without link", zap.Int("line", line), zap.String("name", name))
			continue
		}
		rows = append(rows, Row{Line: line, Name: name, Link: link})
	}

	log.Info("manifest loaded", zap.Int("rows", len(rows)))
	return rows, nil
}

func readRecords(path string, opts Options) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return fetcher.SheetRows(path, opts.Sheet)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "manifest: open csv")
		}
		defer f.Close() //nolint:errcheck
		return fetcher.DelimitedRows(f, 0)
	default:
		return nil, eris.Errorf("manifest: unsupported file type %q", filepath.Ext(path))
	}
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// IsMissing reports whether a link cell is empty or a pandas-style NaN.
func IsMissing(link string) bool {
	link = strings.TrimSpace(link)
	return link == "" || strings.EqualFold(link, "nan")
}

// Tasks turns rows into download tasks writing <destDir>/<name><ext>. Names
// that sanitise to an already used file get the lowest free numeric suffix.
func Tasks(rows []Row, destDir, ext string) []model.DownloadTask {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	used := make(map[string]bool, len(rows))
	next := make(map[string]int, len(rows))
	tasks := make([]model.DownloadTask, 0, len(rows))
	for _, r := range rows {
		base := SanitizeName(r.Name)
		if base == "" {
			base = fmt.Sprintf("row_%d", r.Line)
		}
		stem := strings.ToLower(base)
		name := base
		for n := max(next[stem], 2); used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
			next[stem] = n + 1
		}
		used[strings.ToLower(name)] = true
		base = name
		tasks = append(tasks, model.DownloadTask{
			Name:        r.Name,
			URL:         r.Link,
			Destination: filepath.Join(destDir, base+ext),
		})
	}
	return tasks
}

// SanitizeName makes s safe as a file name on common filesystems.
func SanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " .")
}
