// Package convert batch-converts vector files, one file at a time, so that a
// broken input never stops the rest of the directory.
package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
)

// Defaults for shapefile output from KML and KMZ sources.
const (
	DefaultFormat = "ESRI Shapefile"
	DefaultExt    = ".shp"
)

// DefaultPatterns are the source file globs converted by default.
var DefaultPatterns = []string{"*.kml", "*.kmz"}

// Runner converts a single file.
type Runner interface {
	Convert(ctx context.Context, task model.ConversionTask) error
}

// Recorder persists task outcomes.
type Recorder interface {
	RecordTask(ctx context.Context, run model.TaskRun) error
}

// Outcome is the result of one conversion.
type Outcome struct {
	Task   model.ConversionTask
	Status model.TaskStatus
	Err    error
}

// Report summarises a directory conversion.
type Report struct {
	Found     int
	Converted int
	Failed    int
	Outcomes  []Outcome
}

// Converter converts every matching file of a directory.
type Converter struct {
	Runner   Runner
	Format   string
	Ext      string
	Patterns []string
	Recorder Recorder
}

// New creates a Converter producing ESRI shapefiles from KML and KMZ.
func New(r Runner) *Converter {
	return &Converter{Runner: r, Format: DefaultFormat, Ext: DefaultExt, Patterns: DefaultPatterns}
}

// Tasks lists the conversion tasks for srcDir in file name order.
func (c *Converter) Tasks(srcDir, dstDir string) ([]model.ConversionTask, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: read %s", srcDir)
	}

	ext := c.Ext
	if ext == "" {
		ext = DefaultExt
	}
	format := c.Format
	if format == "" {
		format = DefaultFormat
	}

	var tasks []model.ConversionTask
	for _, e := range entries {
		if e.IsDir() || !c.matches(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		tasks = append(tasks, model.ConversionTask{
			Source:      filepath.Join(srcDir, e.Name()),
			Destination: filepath.Join(dstDir, stem+ext),
			Format:      format,
		})
	}
	return tasks, nil
}

func (c *Converter) matches(name string) bool {
	patterns := c.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}

// ConvertDir converts every matching file in srcDir into dstDir. Failures are
// logged and counted; an error is returned only when srcDir cannot be listed,
// dstDir cannot be created, or ctx is cancelled.
func (c *Converter) ConvertDir(ctx context.Context, srcDir, dstDir string) (Report, error) {
	log := zap.L().With(zap.String("component", "convert"))

	tasks, err := c.Tasks(srcDir, dstDir)
	if err != nil {
		return Report{}, err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return Report{}, eris.Wrapf(err, "convert: create %s", dstDir)
	}

	report := Report{Found: len(tasks)}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "convert: cancelled")
		}

		out := Outcome{Task: task, Status: model.TaskStatusSucceeded}
		if err := c.Runner.Convert(ctx, task); err != nil {
			out.Status = model.TaskStatusFailed
			out.Err = err
			report.Failed++
			log.Error("conversion failed", zap.String("source", task.Source), zap.Error(err))
		} else {
			report.Converted++
			log.Info("converted", zap.String("source", task.Source), zap.String("destination", task.Destination))
		}
		report.Outcomes = append(report.Outcomes, out)
		c.record(ctx, log, out)
	}

	log.Info("conversion complete",
		zap.Int("found", report.Found),
		zap.Int("converted", report.Converted),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (c *Converter) record(ctx context.Context, log *zap.Logger, o Outcome) {
	if c.Recorder == nil {
		return
	}
	run := model.TaskRun{
		ID:          uuid.NewString(),
		Kind:        model.TaskKindConvert,
		Name:        filepath.Base(o.Task.Source),
		Source:      o.Task.Source,
		Destination: o.Task.Destination,
		Status:      o.Status,
		CreatedAt:   time.Now().UTC(),
	}
	if o.Err != nil {
		run.ErrorKind = "convert"
		run.Error = o.Err.Error()
	}
	if err := c.Recorder.RecordTask(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("record outcome failed", zap.Error(err))
	}
}
