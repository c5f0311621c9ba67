package roster

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobcheck/internal/resilience"
)

// maxRemoteSize caps a downloaded roster.
const maxRemoteSize = 32 << 20

// Downloader fetches roster files over HTTP, retrying 429 and 5xx responses.
type Downloader struct {
	client    *http.Client
	retry     resilience.RetryConfig
	userAgent string
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) DownloaderOption {
	return func(d *Downloader) { d.client = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) DownloaderOption {
	return func(d *Downloader) { d.retry = cfg }
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client:    &http.Client{Timeout: 30 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
		userAgent: "jobcheck/1.0",
	}
	d.retry.OnRetry = resilience.RetryLogger("roster", "download")
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsURL reports whether source is an http or https URL.
func IsURL(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download fetches rawURL and returns its body.
func (d *Downloader) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return resilience.DoVal(ctx, d.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "roster: create request")
		}
		req.Header.Set("User-Agent", d.userAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "roster: download %s", rawURL)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("roster: download %s: unexpected status %d", rawURL, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
		if err != nil {
			return nil, eris.Wrapf(err, "roster: read %s", rawURL)
		}
		if len(data) > maxRemoteSize {
			return nil, eris.Errorf("roster: %s exceeds %d bytes", rawURL, maxRemoteSize)
		}
		return data, nil
	})
}

// LoadURL downloads and parses a remote roster. The format comes from the
// URL path's extension.
func (d *Downloader) LoadURL(ctx context.Context, rawURL string) (*Batch, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: parse url %s", rawURL)
	}
	format, err := FormatOf(u.Path)
	if err != nil {
		return nil, err
	}
	data, err := d.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, rawURL, format, data)
}
