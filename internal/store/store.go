// Package store persists batch outcomes and spectral samples in SQLite.
package store

import (
	"context"
	"time"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/pkg/geocode"
)

// TaskFilter specifies criteria for listing task runs.
type TaskFilter struct {
	Kind   model.TaskKind   `json:"kind,omitempty"`
	Status model.TaskStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// SampleRecord is one stored point analysis: the sampled location, the
// nearest place, the query window, and the valid band and index values.
type SampleRecord struct {
	ID        string          `json:"id"`
	Point     model.GeoPoint  `json:"point"`
	Place     string          `json:"place,omitempty"`
	Region    string          `json:"region,omitempty"`
	Dates     model.DateRange `json:"dates"`
	MaxCloud  float64         `json:"max_cloud"`
	Images    int             `json:"images"`
	Scale     float64         `json:"scale"`
	Values    spectral.Sample `json:"values"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store defines the persistence interface used by the CLI and API.
type Store interface {
	// Task runs
	RecordTask(ctx context.Context, run model.TaskRun) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.TaskRun, error)

	// Samples
	SaveSample(ctx context.Context, rec *SampleRecord) error
	ListSamples(ctx context.Context, limit int) ([]SampleRecord, error)

	// Reverse geocode cache
	geocode.Cache

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
