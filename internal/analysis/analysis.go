// Package analysis combines the raster pipeline, the place index, the
// reverse geocoder, and the sample store into the point operations exposed by
// the CLI and the HTTP API.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/landsample"
	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/placeindex"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/internal/store"
	"github.com/sells-group/spectral-cli/pkg/geocode"
)

// ErrNoImages is returned when no image survives the query filters.
var ErrNoImages = eris.New("analysis: no images found for the selected date range and cloud cover threshold")

// ErrUnavailable is returned when an operation needs a collaborator that is
// not configured.
var ErrUnavailable = eris.New("analysis: not configured")

// Defaults used when the matching Service field is zero.
const (
	DefaultBufferMeters = 5000.0
	DefaultScaleMeters  = 10.0
)

// SampleStore persists analysed samples.
type SampleStore interface {
	SaveSample(ctx context.Context, rec *store.SampleRecord) error
}

// Request is a point query over a date window.
type Request struct {
	Point    model.GeoPoint  `json:"point"`
	Dates    model.DateRange `json:"dates"`
	MaxCloud float64         `json:"max_cloud"`
}

// Location names the surroundings of a point. Either part may be missing
// when its lookup is not configured or failed.
type Location struct {
	Nearest *placeindex.Match `json:"nearest,omitempty"`
	Reverse *geocode.Place    `json:"reverse,omitempty"`
}

// Service runs point analyses. Only Source is required for Spectra and
// Composite; the other collaborators are optional.
type Service struct {
	Source   raster.Source
	Indices  []spectral.IndexDefinition
	Places   *placeindex.Index
	Geocoder geocode.Client
	Sampler  *landsample.Sampler
	Samples  SampleStore
	Reducer  raster.Reducer

	BufferMeters float64
	ScaleMeters  float64
}

func (s *Service) buffer() float64 {
	if s.BufferMeters > 0 {
		return s.BufferMeters
	}
	return DefaultBufferMeters
}

func (s *Service) scale() float64 {
	if s.ScaleMeters > 0 {
		return s.ScaleMeters
	}
	return DefaultScaleMeters
}

func (s *Service) reducer() raster.Reducer {
	if s.Reducer != nil {
		return s.Reducer
	}
	return raster.Median
}

// Collection builds the masked, index-annotated collection around the
// request point.
func (s *Service) Collection(ctx context.Context, req Request) (*raster.Collection, raster.Query, error) {
	if s.Source == nil {
		return nil, raster.Query{}, eris.Wrap(ErrUnavailable, "analysis: no scene source")
	}
	if err := req.Point.Validate(); err != nil {
		return nil, raster.Query{}, err
	}
	q := raster.Query{
		Region:        model.BufferPoint(req.Point, s.buffer()),
		Dates:         req.Dates,
		MaxCloudCover: req.MaxCloud,
	}
	c, err := raster.NewBuilder(s.Source, s.Indices...).Build(ctx, q)
	if err != nil {
		return nil, q, err
	}
	if c.Size() == 0 {
		return nil, q, ErrNoImages
	}
	return c.SortByTime(), q, nil
}

// Locate resolves the nearest indexed place and the reverse geocoded
// address of p. Lookup failures are logged and leave the part empty.
func (s *Service) Locate(ctx context.Context, p model.GeoPoint) Location {
	log := zap.L().With(zap.String("component", "analysis"))

	var loc Location
	if s.Places != nil {
		m, err := s.Places.Nearest(p)
		if err != nil {
			log.Warn("nearest place lookup failed", zap.Error(err))
		} else {
			loc.Nearest = &m
		}
	}
	if s.Geocoder != nil {
		place, err := s.Geocoder.Reverse(ctx, p.Lat, p.Lon)
		if err != nil {
			log.Warn("reverse geocode failed", zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon), zap.Error(err))
		} else {
			loc.Reverse = place
		}
	}
	return loc
}

// LandPoint is a random point over land and its surroundings.
type LandPoint struct {
	Point    model.GeoPoint `json:"point"`
	Attempts int            `json:"attempts"`
	Location Location       `json:"location"`
}

// RandomLand draws a land point with the configured sampler.
func (s *Service) RandomLand(ctx context.Context) (*LandPoint, error) {
	if s.Sampler == nil {
		return nil, eris.Wrap(ErrUnavailable, "analysis: no land sampler")
	}
	p, attempts, err := s.Sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}
	return &LandPoint{Point: p, Attempts: attempts, Location: s.Locate(ctx, p)}, nil
}

// Spectra is the reading of one image at a point.
type Spectra struct {
	Point    model.GeoPoint       `json:"point"`
	ImageID  string               `json:"image_id"`
	Acquired time.Time            `json:"acquired"`
	Images   int                  `json:"images"`
	Scale    float64              `json:"scale"`
	Location Location             `json:"location"`
	Values   []spectral.BandValue `json:"values"`
	RecordID string               `json:"record_id,omitempty"`

	sample spectral.Sample
}

// Sample returns the full reading, including no-data bands.
func (r *Spectra) Sample() spectral.Sample {
	return r.sample
}

// Spectra samples the earliest matching image that covers the point with a
// mean over a ScaleMeters window. Only bands carrying data are reported.
// When a SampleStore is configured the reading is saved.
func (s *Service) Spectra(ctx context.Context, req Request) (*Spectra, error) {
	c, q, err := s.Collection(ctx, req)
	if err != nil {
		return nil, err
	}

	var im *raster.Image
	for _, candidate := range c.Images() {
		if candidate.Footprint().Contains(req.Point) {
			im = candidate
			break
		}
	}
	if im == nil {
		return nil, eris.Wrap(ErrNoImages, "analysis: no image covers the point")
	}

	sample := raster.Sample(im, req.Point, s.scale())
	out := &Spectra{
		Point:    req.Point,
		ImageID:  im.ID,
		Acquired: im.Time,
		Images:   c.Size(),
		Scale:    s.scale(),
		Location: s.Locate(ctx, req.Point),
		Values:   sample.Valid(),
		sample:   sample,
	}

	if s.Samples != nil {
		rec := &store.SampleRecord{
			Point:    req.Point,
			Dates:    q.Dates,
			MaxCloud: q.MaxCloudCover,
			Images:   c.Size(),
			Scale:    out.Scale,
			Values:   sample,
		}
		if m := out.Location.Nearest; m != nil {
			rec.Place, rec.Region = m.Feature.Name, m.Feature.Region
		} else if r := out.Location.Reverse; r != nil {
			rec.Place, rec.Region = r.City, r.Country
		}
		if err := s.Samples.SaveSample(ctx, rec); err != nil {
			return nil, eris.Wrap(err, "analysis: save sample")
		}
		out.RecordID = rec.ID
	}

	zap.L().Info("spectra sampled",
		zap.String("image", im.ID),
		zap.Float64("lat", req.Point.Lat),
		zap.Float64("lon", req.Point.Lon),
		zap.Int("bands", len(out.Values)),
	)
	return out, nil
}
