package model

import (
	"time"

	"github.com/paulmach/orb"
)

// FeatureRecord is a named vector feature loaded from a reference dataset.
type FeatureRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Region     string            `json:"region,omitempty"`
	Geometry   orb.Geometry      `json:"-"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Point returns the representative point of the feature: the geometry itself
// for points, the center of its bound otherwise.
func (f FeatureRecord) Point() GeoPoint {
	switch g := f.Geometry.(type) {
	case orb.Point:
		return PointFromOrb(g)
	case nil:
		return GeoPoint{}
	default:
		return PointFromOrb(g.Bound().Center())
	}
}

// TaskKind distinguishes the batch pipelines whose outcomes are recorded.
type TaskKind string

const (
	TaskKindDownload TaskKind = "download"
	TaskKindConvert  TaskKind = "convert"
)

// TaskStatus is the terminal state of a single batch item.
type TaskStatus string

const (
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// DownloadTask fetches one remote document to a local path.
type DownloadTask struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Destination string `json:"destination"`
}

// ConversionTask converts one vector file to another format.
type ConversionTask struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Format      string `json:"format"`
}

// TaskRun is the persisted outcome of a download or conversion item.
type TaskRun struct {
	ID          string     `json:"id"`
	Kind        TaskKind   `json:"kind"`
	Name        string     `json:"name"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Status      TaskStatus `json:"status"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	Bytes       int64      `json:"bytes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
