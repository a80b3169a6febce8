// Package landsample draws random points over land by rejection sampling
// against a land/sea classifier.
package landsample

import (
	"context"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/model"
)

// ErrNotFound is returned when every attempt was rejected.
var ErrNotFound = eris.New("landsample: no land point found")

// Defaults for Sampler.
const (
	DefaultMaxAttempts = 100
	DefaultMinLat      = -60.0
	DefaultMaxLat      = 80.0
)

// Classifier decides whether a point is over land. Each call may be a remote
// round trip.
type Classifier interface {
	IsLand(ctx context.Context, p model.GeoPoint) (bool, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, p model.GeoPoint) (bool, error)

// IsLand implements Classifier.
func (f ClassifierFunc) IsLand(ctx context.Context, p model.GeoPoint) (bool, error) {
	return f(ctx, p)
}

// Sampler draws latitude uniformly from [MinLat, MaxLat] and longitude from
// [-180, 180] until the classifier accepts a point or MaxAttempts is spent.
type Sampler struct {
	Classifier  Classifier
	MaxAttempts int
	MinLat      float64
	MaxLat      float64
	// Rand is the random source; nil uses the global generator.
	Rand *rand.Rand
}

// New creates a Sampler with the default attempts and latitude band.
func New(c Classifier) *Sampler {
	return &Sampler{
		Classifier:  c,
		MaxAttempts: DefaultMaxAttempts,
		MinLat:      DefaultMinLat,
		MaxLat:      DefaultMaxLat,
	}
}

// Validate checks the sampler settings.
func (s *Sampler) Validate() error {
	if s.Classifier == nil {
		return eris.New("landsample: classifier is required")
	}
	if s.MaxAttempts <= 0 {
		return eris.Errorf("landsample: max attempts must be positive, got %d", s.MaxAttempts)
	}
	if s.MinLat < -90 || s.MaxLat > 90 || s.MinLat >= s.MaxLat {
		return eris.Errorf("landsample: invalid latitude band [%v, %v]", s.MinLat, s.MaxLat)
	}
	return nil
}

func (s *Sampler) uniform() float64 {
	if s.Rand != nil {
		return s.Rand.Float64()
	}
	return rand.Float64()
}

// Sample returns the first accepted point and the number of classifier calls
// made. Classifier errors count as rejections. After MaxAttempts rejections
// it returns ErrNotFound.
func (s *Sampler) Sample(ctx context.Context) (model.GeoPoint, int, error) {
	if err := s.Validate(); err != nil {
		return model.GeoPoint{}, 0, err
	}

	log := zap.L().With(zap.String("component", "landsample"))

	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.GeoPoint{}, attempt - 1, eris.Wrap(err, "landsample: cancelled")
		}

		p := model.GeoPoint{
			Lat: s.MinLat + s.uniform()*(s.MaxLat-s.MinLat),
			Lon: -180 + s.uniform()*360,
		}

		land, err := s.Classifier.IsLand(ctx, p)
		if err != nil {
			log.Warn("classifier failed, counting as rejection",
				zap.Int("attempt", attempt),
				zap.Float64("lat", p.Lat),
				zap.Float64("lon", p.Lon),
				zap.Error(err),
			)
			continue
		}
		if land {
			log.Debug("land point found", zap.Int("attempts", attempt), zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon))
			return p, attempt, nil
		}
	}

	log.Warn("no land point found", zap.Int("attempts", s.MaxAttempts))
	return model.GeoPoint{}, s.MaxAttempts, ErrNotFound
}
