package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	Retry        resilience.RetryConfig
	RateLimiters map[string]*rate.Limiter // per host
	DefaultRate  rate.Limit               // for hosts without an entry, default 5/s
}

// HTTPFetcher implements Fetcher using net/http with retry and per-host rate
// limiting. Rate-limit (429) and server (5xx) responses are retried; other
// non-200 responses fail immediately.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "indemnizatii/1.0"
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 5
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("http", "download")
	}
	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

// NewHTTPFetcherFromConfig builds a fetcher from the fetch and retry
// sections of the app config.
func NewHTTPFetcherFromConfig(fetch config.FetchConfig, retry config.RetryConfig) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: fetch.UserAgent,
		Timeout:   time.Duration(fetch.TimeoutSecs) * time.Second,
		Retry:     resilience.FromConfig(retry),
	})
}

// limiterFor returns the limiter for the URL's host, creating one at
// DefaultRate on first use.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.DefaultRate, 1)
		f.limiters[host] = lim
	}
	return lim
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	lim := f.limiterFor(rawURL)

	resp, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, resilience.NewTransientError(
				eris.Errorf("http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
		}
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to path. The file only
// appears at path once the body has been written completely.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}

	n, err := io.Copy(file, body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "write file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "rename file")
	}

	zap.L().Info("fetcher: downloaded",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return n, nil
}
