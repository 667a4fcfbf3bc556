package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckerIsAllowed(t *testing.T) {
	robotsTxt := `User-agent: *
Disallow: /private/
Allow: /private/public/
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte(robotsTxt))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New("test-agent/1.0", time.Minute, nil)

	allowed, err := c.IsAllowed(context.Background(), server.URL+"/docs/page.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected /docs/page.md to be allowed")
	}

	allowed, err = c.IsAllowed(context.Background(), server.URL+"/private/secret.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected /private/secret.md to be disallowed")
	}

	allowed, err = c.IsAllowed(context.Background(), server.URL+"/private/public/page.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected /private/public/page.md to be allowed (more specific Allow wins)")
	}
}

func TestCheckerNoRobotsTxtAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New("test-agent/1.0", time.Minute, nil)

	allowed, err := c.IsAllowed(context.Background(), server.URL+"/anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("missing robots.txt should allow everything")
	}
}

func TestCheckerCrawlDelay(t *testing.T) {
	robotsTxt := "User-agent: *\nCrawl-delay: 2\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(robotsTxt))
	}))
	defer server.Close()

	c := New("test-agent/1.0", time.Minute, nil)

	delay, err := c.GetCrawlDelay(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delay != 2*time.Second {
		t.Errorf("expected 2s crawl delay, got %v", delay)
	}
}
