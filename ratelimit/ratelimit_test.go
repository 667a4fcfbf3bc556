package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterDisabledIsNearInstant(t *testing.T) {
	l := New(config.RateLimitOptions{})
	defer l.Close()

	start := time.Now()
	err := l.Wait(context.Background(), "https://example.com/llms.txt")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterRequestsPerSecond(t *testing.T) {
	l := New(config.RateLimitOptions{RequestsPerSecond: 10, Burst: 1})
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://example.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterIndependentPerDomain(t *testing.T) {
	l := New(config.RateLimitOptions{RequestsPerSecond: 1, Burst: 1})
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://a.example.com/x"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/x"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterRespectsRetryAfter(t *testing.T) {
	l := New(config.RateLimitOptions{RespectRetryAfter: true, MaxConcurrent: 1})
	defer l.Close()

	headers := http.Header{}
	headers.Set("Retry-After", "1")
	l.UpdateRetryAfter("https://example.com/llms.txt", headers)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://example.com/llms.txt"))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestLimiterConcurrencyBound(t *testing.T) {
	l := New(config.RateLimitOptions{MaxConcurrent: 1})
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://example.com/a"))

	done := make(chan struct{})
	go func() {
		_ = l.Wait(ctx, "https://example.com/b")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Wait should block until Release")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release("https://example.com/a")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Wait should unblock after Release")
	}
}
