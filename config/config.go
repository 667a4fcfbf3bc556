// Package config holds the option-value structs every component accepts.
// Each is a plain record with Get*() accessors that apply defaults for
// zero values, following this toolkit's convention of no process-global
// configuration and no ambient state: every option is passed in by
// construction or per call.
package config

import (
	"fmt"
	"time"
)

// RateLimitOptions configures the fetcher's optional per-domain politeness
// limiter. Disabled (zero value) by default.
type RateLimitOptions struct {
	RequestsPerSecond float64
	Burst             int
	MaxConcurrent     int
	RespectRetryAfter bool
}

// IsEnabled reports whether rate limiting is configured at all.
func (o RateLimitOptions) IsEnabled() bool {
	return o.RequestsPerSecond > 0 || o.MaxConcurrent > 0
}

// GetDelay returns the minimum inter-request delay implied by
// RequestsPerSecond, or 0 if unset.
func (o RateLimitOptions) GetDelay() time.Duration {
	if o.RequestsPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / o.RequestsPerSecond)
}

// GetBurst returns o.Burst, defaulting to 1.
func (o RateLimitOptions) GetBurst() int {
	if o.Burst <= 0 {
		return 1
	}
	return o.Burst
}

// GetMaxConcurrent returns o.MaxConcurrent, defaulting to 0 (unbounded).
func (o RateLimitOptions) GetMaxConcurrent() int {
	return o.MaxConcurrent
}

// RetryOptions describes an exponential-backoff retry policy with
// defaulting accessors. The fetcher does not read it; its retries are
// configured by FetchOptions.MaxRetries and FetchOptions.RetryDelayMs.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// GetMaxRetries returns o.MaxRetries, defaulting to 2 additional attempts.
func (o RetryOptions) GetMaxRetries() int {
	if o.MaxRetries < 0 {
		return 0
	}
	if o.MaxRetries == 0 {
		return 2
	}
	return o.MaxRetries
}

// GetInitialDelay returns o.InitialDelay, defaulting to 1 second.
func (o RetryOptions) GetInitialDelay() time.Duration {
	if o.InitialDelay <= 0 {
		return time.Second
	}
	return o.InitialDelay
}

// GetMaxDelay returns o.MaxDelay, defaulting to 30 seconds.
func (o RetryOptions) GetMaxDelay() time.Duration {
	if o.MaxDelay <= 0 {
		return 30 * time.Second
	}
	return o.MaxDelay
}

// FetchOptions configures the Fetcher's request shape, retry policy, and
// response-size/network guardrails.
type FetchOptions struct {
	UserAgent            string
	TimeoutSeconds       int
	MaxRetries           int
	RetryDelayMs         int
	AcceptHeaderOverride string
	MaxResponseSizeBytes int64
	BlockPrivateNetworks bool
	RateLimit            RateLimitOptions
}

// DefaultUserAgent identifies this toolkit honestly; never a browser
// string, so server operators can identify and rate-limit it fairly.
const DefaultUserAgent = "LlmsTxtKit/1.0 (+https://github.com/llmstxtkit/llmstxtkit)"

// GetUserAgent returns o.UserAgent, defaulting to DefaultUserAgent.
func (o FetchOptions) GetUserAgent() string {
	if o.UserAgent == "" {
		return DefaultUserAgent
	}
	return o.UserAgent
}

// GetTimeout returns the per-attempt wall-clock bound, defaulting to 15s.
func (o FetchOptions) GetTimeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// GetMaxRetries returns o.MaxRetries, defaulting to 2.
func (o FetchOptions) GetMaxRetries() int {
	if o.MaxRetries < 0 {
		return 0
	}
	if o.MaxRetries == 0 {
		return 2
	}
	return o.MaxRetries
}

// GetRetryDelay returns the base retry delay, defaulting to 1000ms.
func (o FetchOptions) GetRetryDelay() time.Duration {
	if o.RetryDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(o.RetryDelayMs) * time.Millisecond
}

// GetAccept returns the Accept header override, defaulting to a
// Markdown/plain-text-favoring value.
func (o FetchOptions) GetAccept() string {
	if o.AcceptHeaderOverride != "" {
		return o.AcceptHeaderOverride
	}
	return "text/markdown, text/plain;q=0.9, */*;q=0.1"
}

// GetMaxResponseSize returns o.MaxResponseSizeBytes, defaulting to 5 MiB.
func (o FetchOptions) GetMaxResponseSize() int64 {
	if o.MaxResponseSizeBytes <= 0 {
		return 5 * 1024 * 1024
	}
	return o.MaxResponseSizeBytes
}

// Validate reports a descriptive error for any out-of-range field.
func (o FetchOptions) Validate() error {
	if o.TimeoutSeconds < 0 {
		return fmt.Errorf("fetch.timeoutSeconds: '%d' must be >= 0", o.TimeoutSeconds)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("fetch.maxRetries: '%d' must be >= 0", o.MaxRetries)
	}
	if o.RetryDelayMs < 0 {
		return fmt.Errorf("fetch.retryDelayMs: '%d' must be >= 0", o.RetryDelayMs)
	}
	if o.MaxResponseSizeBytes < 0 {
		return fmt.Errorf("fetch.maxResponseSizeBytes: '%d' must be >= 0", o.MaxResponseSizeBytes)
	}
	return nil
}

// ValidatorOptions configures the Validator's optional network-dependent
// checks (linked-URL reachability, content freshness).
type ValidatorOptions struct {
	CheckLinkedURLs        bool
	CheckFreshness         bool
	URLCheckTimeoutSeconds int
	FreshnessReference     time.Time
}

// GetURLCheckTimeout returns o.URLCheckTimeoutSeconds, defaulting to 10s.
func (o ValidatorOptions) GetURLCheckTimeout() time.Duration {
	if o.URLCheckTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(o.URLCheckTimeoutSeconds) * time.Second
}

// CacheOptions configures the Cache's TTL, eviction, and revalidation
// behavior.
type CacheOptions struct {
	TTL                  time.Duration
	MaxEntries           int
	StaleWhileRevalidate *bool
	CleanupInterval      time.Duration
}

// GetTTL returns o.TTL, defaulting to 1 hour.
func (o CacheOptions) GetTTL() time.Duration {
	if o.TTL <= 0 {
		return time.Hour
	}
	return o.TTL
}

// GetMaxEntries returns o.MaxEntries, defaulting to 1000.
func (o CacheOptions) GetMaxEntries() int {
	if o.MaxEntries <= 0 {
		return 1000
	}
	return o.MaxEntries
}

// IsStaleWhileRevalidateEnabled returns o.StaleWhileRevalidate, defaulting
// to true.
func (o CacheOptions) IsStaleWhileRevalidateEnabled() bool {
	if o.StaleWhileRevalidate == nil {
		return true
	}
	return *o.StaleWhileRevalidate
}

// GetCleanupInterval returns o.CleanupInterval, defaulting to 5 minutes.
func (o CacheOptions) GetCleanupInterval() time.Duration {
	if o.CleanupInterval <= 0 {
		return 5 * time.Minute
	}
	return o.CleanupInterval
}

// Validate reports a descriptive error for any out-of-range field.
func (o CacheOptions) Validate() error {
	if o.TTL < 0 {
		return fmt.Errorf("cache.ttl: '%s' must be >= 0", o.TTL)
	}
	if o.MaxEntries < 0 {
		return fmt.Errorf("cache.maxEntries: '%d' must be >= 0", o.MaxEntries)
	}
	return nil
}

// GenerateOptions configures the context generator's entry-fetch
// concurrency, token budget, and output shaping.
type GenerateOptions struct {
	MaxTokens         int
	IncludeOptional   bool
	WrapSectionsInXML *bool
	TokenEstimator    func(string) int
	Concurrency       int
	RespectRobotsTxt  bool
	SanitizeHTML      bool
}

// GetWrapSectionsInXML returns o.WrapSectionsInXML, defaulting to true.
func (o GenerateOptions) GetWrapSectionsInXML() bool {
	if o.WrapSectionsInXML == nil {
		return true
	}
	return *o.WrapSectionsInXML
}

// GetConcurrency returns o.Concurrency, defaulting to 4.
func (o GenerateOptions) GetConcurrency() int {
	if o.Concurrency <= 0 {
		return 4
	}
	return o.Concurrency
}

// Validate reports a descriptive error for any out-of-range field.
func (o GenerateOptions) Validate() error {
	if o.MaxTokens < 0 {
		return fmt.Errorf("generate.maxTokens: '%d' must be >= 0", o.MaxTokens)
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("generate.concurrency: '%d' must be >= 0", o.Concurrency)
	}
	return nil
}
