// Package download runs a batch of download tasks with bounded parallelism.
// Every task is isolated: a failure is logged and recorded, never propagated
// to its siblings.
package download

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spectral-cli/internal/fetcher"
	"github.com/sells-group/spectral-cli/internal/manifest"
	"github.com/sells-group/spectral-cli/internal/model"
)

// DefaultWorkers is the default number of concurrent downloads.
const DefaultWorkers = 5

// Kind classifies a download failure.
type Kind string

const (
	KindMissingURL Kind = "missing_url"
	KindHTTPStatus Kind = "http_status"
	KindRequest    Kind = "request"
)

// Recorder persists task outcomes.
type Recorder interface {
	RecordTask(ctx context.Context, run model.TaskRun) error
}

// Outcome is the result of one task.
type Outcome struct {
	Task     model.DownloadTask
	Status   model.TaskStatus
	Kind     Kind
	Err      error
	Bytes    int64
	Duration time.Duration
}

// Report summarises a batch. Outcomes are in task order.
type Report struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Skipped   int
}

// Downloader fetches tasks concurrently. It never retries.
type Downloader struct {
	Fetcher fetcher.Fetcher
	Workers int
	// SkipExisting leaves non-empty destination files untouched.
	SkipExisting bool
	Recorder     Recorder
}

// New creates a Downloader with the default worker count and skipping of
// existing files enabled.
func New(f fetcher.Fetcher) *Downloader {
	return &Downloader{Fetcher: f, Workers: DefaultWorkers, SkipExisting: true}
}

// Run executes every task and returns once all have finished. Cancelling ctx
// stops tasks that have not started and aborts in-flight requests.
func (d *Downloader) Run(ctx context.Context, tasks []model.DownloadTask) Report {
	log := zap.L().With(zap.String("component", "download"))

	workers := d.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	outcomes := make([]Outcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = d.runOne(ctx, log, task)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case model.TaskStatusSucceeded:
			report.Succeeded++
		case model.TaskStatusFailed:
			report.Failed++
		case model.TaskStatusSkipped:
			report.Skipped++
		}
	}

	log.Info("download batch complete",
		zap.Int("tasks", len(tasks)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report
}

func (d *Downloader) runOne(ctx context.Context, log *zap.Logger, task model.DownloadTask) Outcome {
	start := time.Now()
	out := Outcome{Task: task}
	log = log.With(zap.String("name", task.Name), zap.String("destination", task.Destination))

	switch {
	case manifest.IsMissing(task.URL):
		out.Status = model.TaskStatusSkipped
		out.Kind = KindMissingURL
		log.Warn("skipping task without url")
	case ctx.Err() != nil:
		out.Status = model.TaskStatusFailed
		out.Kind = KindRequest
		out.Err = eris.Wrap(ctx.Err(), "download: cancelled")
		log.Error("download failed", zap.String("kind", string(out.Kind)), zap.Error(out.Err))
	case d.SkipExisting && nonEmptyFile(task.Destination):
		out.Status = model.TaskStatusSkipped
		log.Info("destination exists, skipping")
	default:
		out = d.fetch(ctx, log, task)
	}

	out.Duration = time.Since(start)
	d.record(ctx, log, out)
	return out
}

func (d *Downloader) fetch(ctx context.Context, log *zap.Logger, task model.DownloadTask) Outcome {
	out := Outcome{Task: task}
	existed := fileExists(task.Destination)

	n, err := d.Fetcher.DownloadToFile(ctx, task.URL, task.Destination)
	if err != nil {
		if !existed {
			_ = os.Remove(task.Destination)
		}
		out.Status = model.TaskStatusFailed
		out.Kind = classify(err)
		out.Err = err
		fields := []zap.Field{zap.String("url", task.URL), zap.String("kind", string(out.Kind)), zap.Error(err)}
		if se, ok := fetcher.AsStatusError(err); ok {
			fields = append(fields, zap.Int("status", se.Code))
		}
		log.Error("download failed", fields...)
		return out
	}

	out.Status = model.TaskStatusSucceeded
	out.Bytes = n
	log.Info("downloaded", zap.String("url", task.URL), zap.Int64("bytes", n))
	return out
}

func classify(err error) Kind {
	if _, ok := fetcher.AsStatusError(err); ok {
		return KindHTTPStatus
	}
	return KindRequest
}

func (d *Downloader) record(ctx context.Context, log *zap.Logger, o Outcome) {
	if d.Recorder == nil {
		return
	}
	run := model.TaskRun{
		ID:          uuid.NewString(),
		Kind:        model.TaskKindDownload,
		Name:        o.Task.Name,
		Source:      o.Task.URL,
		Destination: o.Task.Destination,
		Status:      o.Status,
		ErrorKind:   string(o.Kind),
		Bytes:       o.Bytes,
		CreatedAt:   time.Now().UTC(),
	}
	if o.Err != nil {
		run.Error = o.Err.Error()
	}
	// Recording must outlive a cancelled batch.
	if err := d.Recorder.RecordTask(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("record outcome failed", zap.Error(err))
	}
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDirs creates the parent directory of every destination.
func EnsureDirs(tasks []model.DownloadTask) error {
	made := make(map[string]bool)
	for _, t := range tasks {
		dir := filepath.Dir(t.Destination)
		if made[dir] {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "download: create directory %s", dir)
		}
		made[dir] = true
	}
	return nil
}
