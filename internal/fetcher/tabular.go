package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Spreadsheet exports reach us either as workbooks or as delimited text.
// Both readers return trimmed cells with trailing blank cells dropped, so a
// manifest reads the same whichever format it was saved in.

// SheetRows reads the sheet called name from an XLSX workbook, or the first
// sheet when name is empty.
func SheetRows(path, name string) ([][]string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open workbook")
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("tabular: workbook has no sheets")
	}

	sheet := wb.Sheets[0]
	if name != "" {
		var ok bool
		if sheet, ok = wb.Sheet[name]; !ok {
			return nil, eris.Errorf("tabular: sheet %q not found", name)
		}
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		var cells []string
		if row != nil {
			cells = make([]string, len(row.Cells))
			for i, c := range row.Cells {
				cells[i] = c.String()
			}
		}
		rows = append(rows, tidy(cells))
	}
	return rows, nil
}

// DelimitedRows reads delimited text from r; comma 0 means ','. A UTF-8 or
// UTF-16 byte order mark is honoured and stripped.
func DelimitedRows(r io.Reader, comma rune) ([][]string, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if comma != 0 {
		cr.Comma = comma
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, eris.Wrapf(err, "tabular: read line %d", len(rows)+1)
		}
		rows = append(rows, tidy(rec))
	}
}

func tidy(cells []string) []string {
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
