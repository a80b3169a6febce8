package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Retry governs repeated attempts. A zero MaxAttempts means one try.
	Retry resilience.RetryConfig
	// HostRate is the steady request rate allowed per host.
	HostRate rate.Limit
}

// hostThrottle paces requests to one host. A 429 halves the rate, never
// below a quarter of base, and each success steps it back toward base.
type hostThrottle struct {
	lim  *rate.Limiter
	base rate.Limit
}

func newHostThrottle(base rate.Limit) *hostThrottle {
	burst := 1
	if base != rate.Inf && base > 1 {
		burst = int(base)
	}
	return &hostThrottle{lim: rate.NewLimiter(base, burst), base: base}
}

func (h *hostThrottle) slowDown() {
	next := max(h.lim.Limit()/2, h.base/4)
	h.lim.SetLimit(next)
	zap.L().Warn("fetcher: host answered 429, slowing down", zap.Float64("rate", float64(next)))
}

func (h *hostThrottle) recover() {
	if cur := h.lim.Limit(); cur < h.base {
		h.lim.SetLimit(min(cur*1.25, h.base))
	}
}

// HTTPFetcher implements Fetcher over net/http with retry and per-host
// pacing.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	hosts  sync.Map // host -> *hostThrottle
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.HostRate == 0 {
		opts.HostRate = 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "spectral-cli/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
	}
}

func (f *HTTPFetcher) throttle(u *url.URL) *hostThrottle {
	if h, ok := f.hosts.Load(u.Host); ok {
		return h.(*hostThrottle)
	}
	h, _ := f.hosts.LoadOrStore(u.Host, newHostThrottle(f.opts.HostRate))
	return h.(*hostThrottle)
}

// Download fetches the URL and returns the response body. A non-2xx final
// response yields a *StatusError. Transient statuses are retried while
// attempts remain.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	th := f.throttle(req.URL)

	body, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		if err := th.lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			th.recover()
			return resp.Body, nil
		}

		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			th.slowDown()
		}
		se := &StatusError{URL: rawURL, Code: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(se, resp.StatusCode)
		}
		return nil, se
	})
	if err == nil {
		return body, nil
	}

	var te *resilience.TransientError
	if errors.As(err, &te) {
		err = te.Err
	}
	var se *StatusError
	if errors.As(err, &se) {
		return nil, eris.Wrap(se, "fetcher: download")
	}
	return nil, eris.Wrapf(err, "fetcher: request %s", req.URL.Redacted())
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFileAtomic(path, body)
}
