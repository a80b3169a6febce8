package geocode

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Cache persists reverse lookups by rounded coordinate key. GetPlace
// ignores entries older than maxAge; zero means no expiry.
type Cache interface {
	GetPlace(ctx context.Context, key string, maxAge time.Duration) (*Place, bool, error)
	PutPlace(ctx context.Context, key string, p *Place) error
}

// cacheKey rounds to five decimals (about a metre) so repeated clicks on
// the same spot share an entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lon)
}

// checkCache returns a cached place. Cache failures are logged and treated
// as a miss so a broken cache never blocks a lookup.
func (g *geocoder) checkCache(ctx context.Context, key string) (*Place, bool) {
	if g.cache == nil {
		return nil, false
	}
	p, ok, err := g.cache.GetPlace(ctx, key, g.cacheTTL)
	if err != nil {
		zap.L().Warn("geocode: cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if ok {
		zap.L().Debug("geocode cache hit", zap.String("key", key))
	}
	return p, ok
}

func (g *geocoder) storeCache(ctx context.Context, key string, p *Place) {
	if g.cache == nil {
		return
	}
	if err := g.cache.PutPlace(ctx, key, p); err != nil {
		zap.L().Warn("geocode: cache store failed", zap.String("key", key), zap.Error(err))
	}
}
