// Package geocode resolves coordinates to a city and country through the
// Nominatim reverse geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/resilience"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Unknown is reported when an address has no usable city or country.
const Unknown = "Unknown"

// Place is the result of a reverse lookup.
type Place struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Client reverse geocodes coordinates.
type Client interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the Nominatim root URL.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit. The public
// instance allows one request per second.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithUserAgent sets the User-Agent header Nominatim requires.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

// WithCache stores results in c, keyed by rounded coordinates. Entries
// older than ttl are looked up again; zero keeps them forever.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

type geocoder struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	retry      resilience.RetryConfig
	cache      Cache
	cacheTTL   time.Duration
}

// NewClient creates a new reverse geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		userAgent:  "spectral-cli/1.0",
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type reverseResponse struct {
	Error       string            `json:"error"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Reverse looks up the place at lat/lon. A point Nominatim cannot resolve,
// such as open ocean, yields a Place with Unknown city and country rather
// than an error.
func (g *geocoder) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	key := cacheKey(lat, lon)
	if p, ok := g.checkCache(ctx, key); ok {
		return p, nil
	}

	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("geocode", "reverse")
	}
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*reverseResponse, error) {
		return g.fetch(ctx, lat, lon)
	})
	if err != nil {
		return nil, eris.Wrap(err, "geocode: reverse")
	}

	p := placeFrom(resp, lat, lon)
	g.storeCache(ctx, key, p)
	return p, nil
}

func (g *geocoder) fetch(ctx context.Context, lat, lon float64) (*reverseResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limiter wait")
	}

	params := url.Values{
		"format":         {"jsonv2"},
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"zoom":           {"10"},
		"addressdetails": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse("geocode", resp); err != nil {
		return nil, err
	}

	var out reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}
	return &out, nil
}

func placeFrom(r *reverseResponse, lat, lon float64) *Place {
	p := &Place{City: Unknown, Country: Unknown, Lat: lat, Lon: lon}
	if r.Error != "" {
		zap.L().Debug("geocode: no result", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.String("error", r.Error))
		return p
	}
	p.DisplayName = r.DisplayName
	for _, k := range []string{"city", "town", "village"} {
		if v := strings.TrimSpace(r.Address[k]); v != "" {
			p.City = v
			break
		}
	}
	if v := strings.TrimSpace(r.Address["country"]); v != "" {
		p.Country = v
	}
	p.CountryCode = strings.ToUpper(r.Address["country_code"])
	return p
}
