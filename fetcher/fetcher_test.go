package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domainOf(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return strings.TrimPrefix(strings.TrimPrefix(srv.URL, "https://"), "http://")
}

// newTestFetcher builds a Fetcher whose client trusts the test server's
// certificate and is redirected at the transport level to srv's address,
// since FetchAsync always builds https://{domain}/llms.txt verbatim.
func newTestFetcher(t *testing.T, srv *httptest.Server, opts config.FetchOptions) *Fetcher {
	t.Helper()
	f := New(opts)
	f.client = srv.Client()
	base := srv.URL
	f.client.Transport = rewriteTransport{base: base, inner: srv.Client().Transport}
	return f
}

// rewriteTransport redirects every request to the test server regardless
// of the https://{domain}/llms.txt URL FetchAsync constructed.
type rewriteTransport struct {
	base  string
	inner http.RoundTripper
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := http.NewRequest(req.Method, rt.base+req.URL.Path, req.Body)
	if err != nil {
		return nil, err
	}
	target.Header = req.Header
	inner := rt.inner
	if inner == nil {
		inner = http.DefaultTransport
	}
	return inner.RoundTrip(target.WithContext(req.Context()))
}

func TestFetchAsyncSuccess(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# Site\n"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.FetchOptions{})
	result, err := f.FetchAsync(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	require.NotNil(t, result.Document)
	assert.Equal(t, "Site", result.Document.Title)
}

func TestFetchAsyncNotFound(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.FetchOptions{})
	result, err := f.FetchAsync(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
}

func TestFetchAsyncCloudflareBlock(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("cf-ray", "abc-IAD")
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.FetchOptions{})
	result, err := f.FetchAsync(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, result.Status)
	assert.Equal(t, http.StatusForbidden, result.HTTPStatusCode)
	assert.Contains(t, result.BlockReason, "Cloudflare")
	assert.Nil(t, result.Document)
}

func TestFetchAsyncRateLimitedWithRetryAfter(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var requests int
	f := newTestFetcher(t, srv, config.FetchOptions{MaxRetries: 2})
	countingTransport := f.client.Transport
	f.client.Transport = countingRoundTripper{inner: countingTransport, count: &requests}

	result, err := f.FetchAsync(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Equal(t, 60*time.Second, result.RetryAfter)
	assert.Equal(t, 1, requests, "rate-limited responses must not be retried")
}

type countingRoundTripper struct {
	inner http.RoundTripper
	count *int
}

func (c countingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	*c.count++
	return c.inner.RoundTrip(req)
}

func TestFetchAsyncRetriesServerErrors(t *testing.T) {
	var requests int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.FetchOptions{MaxRetries: 2, RetryDelayMs: 1})
	result, err := f.FetchAsync(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, 3, requests, "1 initial attempt + 2 retries")
}

func TestFetchAsyncDoesNotRetryNon5xxClientErrors(t *testing.T) {
	var requests int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.FetchOptions{MaxRetries: 2, RetryDelayMs: 1})
	result, err := f.FetchAsync(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, 1, requests, "non-5xx 4xx responses must not be retried")
}

func TestFetchAsyncEmptyDomainIsProgrammerError(t *testing.T) {
	f := New(config.FetchOptions{})
	_, err := f.FetchAsync(context.Background(), "")
	assert.Error(t, err)
}

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	d1 := backoffDelay(1, base)
	d2 := backoffDelay(2, base)

	assert.GreaterOrEqual(t, d1, base)
	assert.Less(t, d1, 2*base)
	assert.GreaterOrEqual(t, d2, 2*base)
	assert.Less(t, d2, 3*base)
}
