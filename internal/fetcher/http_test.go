package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		DefaultRate: rate.Inf,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownload_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownload_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher().Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Nr. crt,CUI\n1,123\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "export.csv")
	n, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL+"/export.csv", path)
	require.NoError(t, err)
	assert.Equal(t, int64(18), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Nr. crt,CUI\n1,123\n", string(data))

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadToFile_FailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "export.csv")
	_, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLimiterFor_SharedPerHost(t *testing.T) {
	f := newTestFetcher()
	a := f.limiterFor("https://data.gov.ro/a.csv")
	b := f.limiterFor("https://data.gov.ro/b.csv")
	c := f.limiterFor("https://other.example/c.csv")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestLimiterFor_ConfiguredHost(t *testing.T) {
	custom := rate.NewLimiter(1, 1)
	f := NewHTTPFetcher(HTTPOptions{RateLimiters: map[string]*rate.Limiter{"data.gov.ro": custom}})
	assert.Same(t, custom, f.limiterFor("https://data.gov.ro/x"))
}

func TestNewHTTPFetcherFromConfig(t *testing.T) {
	f := NewHTTPFetcherFromConfig(
		config.FetchConfig{UserAgent: "ua/2", TimeoutSecs: 7},
		config.RetryConfig{MaxAttempts: 5, BaseDelayMs: 10, MaxDelayMs: 20},
	)
	assert.Equal(t, "ua/2", f.opts.UserAgent)
	assert.Equal(t, 7*time.Second, f.client.Timeout)
	assert.Equal(t, 5, f.opts.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, f.opts.Retry.InitialBackoff)
}
