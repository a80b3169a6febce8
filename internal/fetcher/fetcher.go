// Package fetcher downloads remote files over HTTP and FTP and reads the
// tabular, XML, and ZIP formats the download and conversion pipelines consume.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	// On failure no file is left at path.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.Code, e.URL)
}

// AsStatusError unwraps err to a StatusError, if it carries one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if eris.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Router dispatches by URL scheme: ftp:// goes to FTP, everything else to HTTP.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter creates a Router over the given fetchers.
func NewRouter(httpF, ftpF Fetcher) *Router {
	return &Router{HTTP: httpF, FTP: ftpF}
}

func (r *Router) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return r.HTTP, nil
	case "ftp":
		if r.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher configured for %s", rawURL)
		}
		return r.FTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// writeFileAtomic copies body into a temp file next to path and renames it
// into place once complete.
func writeFileAtomic(path string, body io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrap(err, "fetcher: create directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return n, eris.Wrap(err, "fetcher: write file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return n, eris.Wrap(err, "fetcher: rename into place")
	}
	return n, nil
}
