// Package ratelimit provides per-domain request pacing for the fetcher: a
// token bucket plus a concurrency semaphore per host, with optional
// Retry-After tracking. Disabled by default, following the "no ambient
// state" design principle — a caller opts in via config.RateLimitOptions.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/llmstxtkit/llmstxtkit/config"
	urlutil "github.com/llmstxtkit/llmstxtkit/urlutil"
	"golang.org/x/time/rate"
)

// Limiter manages rate limiting for multiple domains.
type Limiter struct {
	config   config.RateLimitOptions
	mu       sync.RWMutex
	limiters map[string]*domainLimiter
	stopCh   chan struct{}
}

// domainLimiter holds rate limiting state for a single domain.
type domainLimiter struct {
	limiter    *rate.Limiter
	semaphore  chan struct{}
	retryAfter time.Time
	lastAccess time.Time
	mu         sync.RWMutex
}

// New creates a new rate limiter with the given configuration and starts a
// background goroutine that evicts limiters for inactive domains. Call
// Close to stop it.
func New(cfg config.RateLimitOptions) *Limiter {
	l := &Limiter{
		config:   cfg,
		limiters: make(map[string]*domainLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupInactiveDomains()
	return l
}

// Wait blocks until the rate limit allows a request to the given URL's
// host. A no-op when rate limiting is disabled.
func (l *Limiter) Wait(ctx context.Context, urlStr string) error {
	if !l.config.IsEnabled() {
		return nil
	}

	domain := urlutil.Host(urlStr)
	if domain == "" {
		return nil
	}

	return l.getLimiterForDomain(domain).wait(ctx)
}

// Release releases resources held for a domain (the concurrency semaphore
// slot acquired by a matching Wait).
func (l *Limiter) Release(urlStr string) {
	if !l.config.IsEnabled() {
		return
	}

	domain := urlutil.Host(urlStr)
	if domain == "" {
		return
	}

	l.getLimiterForDomain(domain).release()
}

// UpdateRetryAfter updates the retry-after time for a domain based on HTTP
// response headers.
func (l *Limiter) UpdateRetryAfter(urlStr string, headers http.Header) {
	if !l.config.RespectRetryAfter {
		return
	}

	domain := urlutil.Host(urlStr)
	if domain == "" {
		return
	}

	retryAfterStr := headers.Get("Retry-After")
	if retryAfterStr == "" {
		return
	}

	retryAfter := parseRetryAfter(retryAfterStr)
	if retryAfter.IsZero() {
		return
	}

	l.getLimiterForDomain(domain).setRetryAfter(retryAfter)
}

// getLimiterForDomain retrieves or creates a domain-specific limiter.
func (l *Limiter) getLimiterForDomain(domain string) *domainLimiter {
	l.mu.RLock()
	dl, exists := l.limiters[domain]
	l.mu.RUnlock()

	if exists {
		return dl
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dl, exists = l.limiters[domain]
	if exists {
		return dl
	}

	dl = newDomainLimiter(l.config)
	l.limiters[domain] = dl

	return dl
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	close(l.stopCh)
}

func newDomainLimiter(cfg config.RateLimitOptions) *domainLimiter {
	dl := &domainLimiter{
		lastAccess: time.Now(),
	}

	delay := cfg.GetDelay()
	if delay > 0 {
		dl.limiter = rate.NewLimiter(rate.Every(delay), cfg.GetBurst())
	}

	if maxConcurrent := cfg.GetMaxConcurrent(); maxConcurrent > 0 {
		dl.semaphore = make(chan struct{}, maxConcurrent)
	}

	return dl
}

func (dl *domainLimiter) wait(ctx context.Context) error {
	dl.mu.Lock()
	dl.lastAccess = time.Now()
	retryAfter := dl.retryAfter
	dl.mu.Unlock()

	if !retryAfter.IsZero() && time.Now().Before(retryAfter) {
		select {
		case <-time.After(time.Until(retryAfter)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if dl.semaphore != nil {
		select {
		case dl.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if dl.limiter != nil {
		if err := dl.limiter.Wait(ctx); err != nil {
			if dl.semaphore != nil {
				<-dl.semaphore
			}
			return err
		}
	}

	return nil
}

func (dl *domainLimiter) release() {
	if dl.semaphore != nil {
		select {
		case <-dl.semaphore:
		default:
		}
	}
}

func (dl *domainLimiter) setRetryAfter(retryAfter time.Time) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if retryAfter.After(dl.retryAfter) {
		dl.retryAfter = retryAfter
	}
}

func parseRetryAfter(value string) time.Time {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Now().Add(time.Duration(seconds) * time.Second)
	}
	if t, err := http.ParseTime(value); err == nil {
		return t
	}
	return time.Time{}
}

// cleanupInactiveDomains periodically removes limiters for domains that
// haven't been accessed in 30 minutes.
func (l *Limiter) cleanupInactiveDomains() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for domain, dl := range l.limiters {
				dl.mu.RLock()
				inactive := now.Sub(dl.lastAccess) > 30*time.Minute
				dl.mu.RUnlock()

				if inactive {
					delete(l.limiters, domain)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}
