// Package stac searches a STAC API (such as Element 84 Earth Search) for
// satellite scenes.
package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Earth Search v1 endpoint.
const DefaultBaseURL = "https://earth-search.aws.element84.com/v1"

// SentinelL2A is the Earth Search collection of Sentinel-2 L2A COGs.
const SentinelL2A = "sentinel-2-l2a"

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Collections []string                  `json:"collections,omitempty"`
	BBox        []float64                 `json:"bbox,omitempty"`
	Datetime    string                    `json:"datetime,omitempty"`
	Limit       int                       `json:"limit,omitempty"`
	Query       map[string]map[string]any `json:"query,omitempty"`

	// MaxItems stops pagination once this many items are collected. Zero
	// means one page.
	MaxItems int `json:"-"`
}

// NewSearch builds a request for scenes over bound between start and end
// (inclusive days) with eo:cloud_cover below maxCloud.
func NewSearch(collection string, bound orb.Bound, start, end time.Time, maxCloud float64) SearchRequest {
	return SearchRequest{
		Collections: []string{collection},
		BBox:        []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
		Datetime:    FormatInterval(start, end),
		Limit:       100,
		Query:       map[string]map[string]any{"eo:cloud_cover": {"lt": maxCloud}},
	}
}

// FormatInterval renders an RFC 3339 interval covering both calendar days.
func FormatInterval(start, end time.Time) string {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, time.UTC)
	return from.Format(time.RFC3339) + "/" + to.Format(time.RFC3339)
}

// Item is a STAC item.
type Item struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	BBox       []float64         `json:"bbox"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties Properties        `json:"properties"`
	Assets     map[string]Asset  `json:"assets"`
}

// Bound returns the item bbox, or the geometry bound when bbox is absent.
func (it Item) Bound() orb.Bound {
	if len(it.BBox) >= 4 {
		return orb.Bound{Min: orb.Point{it.BBox[0], it.BBox[1]}, Max: orb.Point{it.BBox[2], it.BBox[3]}}
	}
	if it.Geometry != nil && it.Geometry.Coordinates != nil {
		return it.Geometry.Coordinates.Bound()
	}
	return orb.Bound{}
}

// Properties holds the item properties used for filtering.
type Properties struct {
	Datetime   time.Time `json:"datetime"`
	CloudCover *float64  `json:"eo:cloud_cover,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	MGRSTile   string    `json:"s2:mgrs_tile,omitempty"`
}

// Asset is a downloadable file of an item.
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Link is a STAC link. Next-page links carry a method and body for POST
// pagination.
type Link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type itemCollection struct {
	Features []Item `json:"features"`
	Links    []Link `json:"links"`
}

// Client talks to a STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)) }
}

// NewClient creates a STAC client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		userAgent:  "spectral-cli/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search posts req to /search and follows next links until MaxItems items
// are collected or the results run out.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Item, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "stac: marshal search")
	}

	method, target := http.MethodPost, c.baseURL+"/search"
	var items []Item
	for {
		page, err := c.fetch(ctx, method, target, body)
		if err != nil {
			return items, err
		}
		items = append(items, page.Features...)

		if req.MaxItems <= 0 || len(items) >= req.MaxItems || len(page.Features) == 0 {
			break
		}
		next, ok := nextLink(page.Links)
		if !ok {
			break
		}
		method, target, body = http.MethodGet, next.Href, nil
		if strings.EqualFold(next.Method, http.MethodPost) {
			method, body = http.MethodPost, next.Body
		}
	}

	if req.MaxItems > 0 && len(items) > req.MaxItems {
		items = items[:req.MaxItems]
	}
	return items, nil
}

func nextLink(links []Link) (Link, bool) {
	for _, l := range links {
		if l.Rel == "next" && l.Href != "" {
			return l, true
		}
	}
	return Link{}, false
}

func (c *Client) fetch(ctx context.Context, method, target string, body []byte) (*itemCollection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "stac: rate limiter wait")
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, eris.Wrap(err, "stac: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "stac: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("stac: search status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var page itemCollection
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, eris.Wrap(err, "stac: decode response")
	}
	return &page, nil
}
