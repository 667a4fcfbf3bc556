// Package fetcher retrieves https://{domain}/llms.txt, classifies the
// outcome into one of seven mutually exclusive statuses, fingerprints WAF
// blocks, and retries transient failures with exponential backoff and
// jitter. It owns the single *http.Client shared with the context
// generator and validator, so connection pooling and retry/timeout
// semantics stay consistent across the toolkit.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/llmstxtkit/llmstxtkit/document"
	"github.com/llmstxtkit/llmstxtkit/parser"
	"github.com/llmstxtkit/llmstxtkit/ratelimit"
)

// Status is one of the seven mutually exclusive outcomes a fetch can
// classify to. Callers branch on Status, never on raw HTTP codes.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusNotFound    Status = "not_found"
	StatusBlocked     Status = "blocked"
	StatusRateLimited Status = "rate_limited"
	StatusDNSFailure  Status = "dns_failure"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
)

// Result is the always-returned outcome of a fetch; FetchAsync never
// raises except for programmer errors and cancellation.
type Result struct {
	Status          Status
	Document        *document.Document
	RawContent      string
	HTTPStatusCode  int
	ResponseHeaders http.Header
	BlockReason     string
	RetryAfter      time.Duration
	ErrorMessage    string
	Duration        time.Duration
	Domain          string
	// Retriable is only meaningful when Status is StatusError: it
	// distinguishes a 5xx/network-layer failure (true) from a non-5xx 4xx
	// response (false), which the retry loop never reattempts.
	Retriable bool
}

// Fetcher performs the primary https://{domain}/llms.txt retrieval and
// exposes the shared *http.Client used elsewhere in the toolkit.
type Fetcher struct {
	opts      config.FetchOptions
	client    *http.Client
	limiter   *ratelimit.Limiter
	ownLimiter bool
}

// New builds a Fetcher. If opts.RateLimit is enabled, an internal
// ratelimit.Limiter is created and owned by this Fetcher (freed by Close).
func New(opts config.FetchOptions) *Fetcher {
	var transport http.RoundTripper = http.DefaultTransport
	if opts.BlockPrivateNetworks {
		transport = &ssrfProtectedTransport{base: http.DefaultTransport}
	}

	client := &http.Client{
		Transport: transport,
	}

	f := &Fetcher{opts: opts, client: client}
	if opts.RateLimit.IsEnabled() {
		f.limiter = ratelimit.New(opts.RateLimit)
		f.ownLimiter = true
	}
	return f
}

// NewWithClient builds a Fetcher around a caller-supplied *http.Client
// (and, optionally, a caller-owned rate limiter), so the context generator
// and validator can reuse one connection pool with the primary fetcher.
func NewWithClient(opts config.FetchOptions, client *http.Client, limiter *ratelimit.Limiter) *Fetcher {
	return &Fetcher{opts: opts, client: client, limiter: limiter}
}

// HTTPClient returns the shared *http.Client, for reuse by other
// components that need to fetch with the same transport and connection
// pool. Retries are not part of the client; FetchAsync applies them.
func (f *Fetcher) HTTPClient() *http.Client {
	return f.client
}

// Close releases resources owned by this Fetcher (its rate limiter, if it
// created one).
func (f *Fetcher) Close() {
	if f.ownLimiter && f.limiter != nil {
		f.limiter.Close()
	}
}

// ssrfProtectedTransport wraps a base transport, rejecting requests whose
// destination resolves to a loopback or private address.
type ssrfProtectedTransport struct {
	base http.RoundTripper
}

func (t *ssrfProtectedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host, _, err := net.SplitHostPort(req.URL.Host)
	if err != nil {
		host = req.URL.Host
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() {
			return nil, fmt.Errorf("requests to private IP addresses are not allowed: %s", host)
		}
	} else {
		ips, err := net.LookupIP(host)
		if err == nil {
			for _, resolved := range ips {
				if resolved.IsLoopback() || resolved.IsPrivate() {
					return nil, fmt.Errorf("url resolves to private IP address: %s -> %s", host, resolved)
				}
			}
		}
	}

	return t.base.RoundTrip(req)
}

// FetchAsync retrieves https://{domain}/llms.txt and classifies the
// outcome. domain must be non-empty; an empty domain is a programmer
// error.
func (f *Fetcher) FetchAsync(ctx context.Context, domain string) (Result, error) {
	if strings.TrimSpace(domain) == "" {
		return Result{}, errors.New("fetcher: domain must not be empty")
	}

	url := "https://" + domain + "/llms.txt"
	start := time.Now()

	maxRetries := f.opts.GetMaxRetries()
	var result Result

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, f.opts.GetRetryDelay())
			if err := sleep(ctx, delay); err != nil {
				result.Duration = time.Since(start)
				result.Domain = domain
				result.Status = StatusError
				result.ErrorMessage = "cancelled during retry backoff"
				return result, err
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				result.Duration = time.Since(start)
				result.Domain = domain
				result.Status = StatusError
				result.ErrorMessage = err.Error()
				return result, ctx.Err()
			}
		}

		result = f.attempt(ctx, url, domain)
		if f.limiter != nil {
			f.limiter.Release(url)
			if result.ResponseHeaders != nil {
				f.limiter.UpdateRetryAfter(url, result.ResponseHeaders)
			}
		}

		if !isRetriable(result) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	result.Duration = time.Since(start)
	result.Domain = domain
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// attempt performs exactly one outbound GET and classifies it.
func (f *Fetcher) attempt(ctx context.Context, url, domain string) Result {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.opts.GetTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}
	req.Header.Set("User-Agent", f.opts.GetUserAgent())
	req.Header.Set("Accept", f.opts.GetAccept())

	resp, err := f.client.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	defer resp.Body.Close()

	headers := lowercaseHeaders(resp.Header)

	limit := f.opts.GetMaxResponseSize()
	body, truncated, err := readLimited(resp.Body, limit)
	if err != nil {
		return Result{
			Status:          StatusError,
			HTTPStatusCode:  resp.StatusCode,
			ResponseHeaders: headers,
			ErrorMessage:    err.Error(),
			Retriable:       true,
		}
	}
	if truncated {
		return Result{
			Status:          StatusError,
			HTTPStatusCode:  resp.StatusCode,
			ResponseHeaders: headers,
			ErrorMessage:    fmt.Sprintf("response body exceeded %d byte limit", limit),
		}
	}

	return classifyResponse(resp.StatusCode, headers, body)
}

func classifyResponse(statusCode int, headers http.Header, body []byte) Result {
	switch {
	case statusCode >= 200 && statusCode < 300:
		content := string(body)
		doc := parser.Parse(content)
		return Result{
			Status:          StatusSuccess,
			Document:        &doc,
			RawContent:      content,
			HTTPStatusCode:  statusCode,
			ResponseHeaders: headers,
		}

	case statusCode == http.StatusNotFound:
		return Result{Status: StatusNotFound, HTTPStatusCode: statusCode, ResponseHeaders: headers}

	case statusCode == http.StatusForbidden:
		reason := fingerprintWAF(headers, body)
		return Result{Status: StatusBlocked, HTTPStatusCode: statusCode, ResponseHeaders: headers, BlockReason: reason}

	case statusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(headers.Get("retry-after"))
		return Result{Status: StatusRateLimited, HTTPStatusCode: statusCode, ResponseHeaders: headers, RetryAfter: retryAfter}

	case statusCode >= 500:
		return Result{
			Status:          StatusError,
			HTTPStatusCode:  statusCode,
			ResponseHeaders: headers,
			ErrorMessage:    fmt.Sprintf("HTTP %d", statusCode),
			Retriable:       true,
		}

	default:
		// Any other 4xx: a deterministic client-side error the server
		// will answer identically on retry.
		return Result{
			Status:          StatusError,
			HTTPStatusCode:  statusCode,
			ResponseHeaders: headers,
			ErrorMessage:    fmt.Sprintf("HTTP %d", statusCode),
			Retriable:       false,
		}
	}
}

// fingerprintWAF inspects headers for known WAF/CDN vendor signals on a
// 403 response.
func fingerprintWAF(headers http.Header, body []byte) string {
	server := strings.ToLower(headers.Get("server"))

	if headers.Get("cf-ray") != "" || strings.Contains(server, "cloudflare") || bytesContainsFold(body, "cloudflare") {
		return "Cloudflare"
	}
	if strings.Contains(server, "cloudfront") || headers.Get("x-amz-cf-id") != "" || headers.Get("x-amzn-waf-action") != "" {
		return "AWS CloudFront/WAF"
	}
	if strings.Contains(server, "akamaighost") || headers.Get("x-akamai-transformed") != "" {
		return "Akamai"
	}
	return "HTTP 403"
}

func bytesContainsFold(body []byte, substr string) bool {
	return strings.Contains(strings.ToLower(string(body)), substr)
}

func classifyNetworkError(err error) Result {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Result{Status: StatusDNSFailure, ErrorMessage: err.Error()}
	}
	if isTimeoutError(err) {
		return Result{Status: StatusTimeout, ErrorMessage: err.Error()}
	}
	return Result{Status: StatusError, ErrorMessage: err.Error(), Retriable: true}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// isRetriable reports whether a result is transient: Timeout always
// retries; an Error-classified result retries only when r.Retriable marks
// it as a 5xx or network-layer failure, never for a non-5xx 4xx response.
func isRetriable(r Result) bool {
	if r.Status == StatusTimeout {
		return true
	}
	return r.Status == StatusError && r.Retriable
}

// backoffDelay computes the exponential-backoff-with-jitter delay for
// retry attempt n (n>=1): base*2^(n-1) plus uniform jitter in [0, base).
func backoffDelay(attempt int, base time.Duration) time.Duration {
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	var jitter time.Duration
	if base > 0 {
		jitter = time.Duration(rand.Int63n(int64(base)))
	}
	return backoff + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func lowercaseHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}

// readLimited reads up to limit+1 bytes, reporting truncation if more was
// available, without buffering an unbounded body in memory.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	limited := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}
