package overpass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/resilience"
)

// DefaultURL is the public Overpass interpreter endpoint.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the interpreter endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimit sets the request rate.
func WithRateLimit(r rate.Limit) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, 1) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client posts Overpass QL to an interpreter.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	userAgent string
}

// NewClient creates a Client for the public interpreter.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultURL,
		http:      &http.Client{Timeout: 3 * time.Minute},
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		retry:     resilience.DefaultRetryConfig(),
		userAgent: "spectral-cli/1.0",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do runs query and decodes the JSON answer. 429 and 5xx answers are
// retried.
func (c *Client) Do(ctx context.Context, query string) (*Result, error) {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("overpass", "query")
	}

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Result, error) {
		return c.post(ctx, query)
	})
	if err != nil {
		return nil, eris.Wrap(err, "overpass: query")
	}

	zap.L().Debug("overpass: query complete", zap.Int("elements", len(res.Elements)))
	return res, nil
}

func (c *Client) post(ctx context.Context, query string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limiter wait")
	}

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse("overpass", resp); err != nil {
		return nil, err
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}
	// Runtime errors such as timeouts arrive as 200 with a remark and
	// partial data.
	if strings.Contains(res.Remark, "runtime error") {
		return nil, resilience.NewTransientError(eris.Errorf("overpass: %s", res.Remark), 0)
	}
	return &res, nil
}
