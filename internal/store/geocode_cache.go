package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/pkg/geocode"
)

// Cache timestamps are unix seconds so the TTL check is a numeric compare.

// GetPlace returns the cached reverse geocode for key. Entries cached
// longer than maxAge ago are misses; zero maxAge disables expiry.
func (s *SQLiteStore) GetPlace(ctx context.Context, key string, maxAge time.Duration) (*geocode.Place, bool, error) {
	query := `SELECT city, country, country_code, display_name, lat, lon
		FROM geocode_cache WHERE cache_key = ?`
	args := []any{key}
	if maxAge > 0 {
		query += " AND cached_at > ?"
		args = append(args, time.Now().Add(-maxAge).Unix())
	}

	var p geocode.Place
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.City, &p.Country, &p.CountryCode, &p.DisplayName, &p.Lat, &p.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: geocode cache lookup")
	}
	return &p, true, nil
}

// PutPlace inserts or refreshes the cached reverse geocode for key.
func (s *SQLiteStore) PutPlace(ctx context.Context, key string, p *geocode.Place) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (cache_key, city, country, country_code, display_name, lat, lon, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			city = excluded.city,
			country = excluded.country,
			country_code = excluded.country_code,
			display_name = excluded.display_name,
			lat = excluded.lat,
			lon = excluded.lon,
			cached_at = excluded.cached_at`,
		key, p.City, p.Country, p.CountryCode, p.DisplayName, p.Lat, p.Lon, time.Now().Unix(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: geocode cache store")
	}
	return nil
}
