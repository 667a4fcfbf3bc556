// Package contextgen assembles a parsed Document's linked entries into a
// single context string sized to a token budget, generalizing this
// toolkit's earlier HTML-minification-for-LLM-consumption idea from
// "clean one page" to "fetch, clean, and budget every entry across a whole
// manifest."
package contextgen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/llmstxtkit/llmstxtkit/document"
	"github.com/llmstxtkit/llmstxtkit/robots"
)

// FetchError records a linked entry whose body could not be retrieved.
type FetchError struct {
	URL     string
	Message string
}

// Result is GenerateAsync's output.
type Result struct {
	Content               string
	ApproximateTokenCount int
	SectionsIncluded      []string
	SectionsOmitted       []string
	SectionsTruncated     []string
	FetchErrors           []FetchError
}

// charsPerToken is the rough character-to-token ratio used only to size a
// truncation cut — DefaultTokenEstimator counts 4 words per token, and an
// average word plus its trailing space runs about 5 characters.
// ApproximateTokenCount itself always comes from the configured estimator,
// never from this constant.
const charsPerToken = 20

// maxShrinkPasses bounds how many times a single section is re-truncated
// while still over budget, guarding against charsPerToken's imprecision
// ever looping indefinitely.
const maxShrinkPasses = 10

// Generator fetches a Document's linked entries and assembles them into a
// budgeted context string.
type Generator struct {
	client         *http.Client
	fetchOpts      config.FetchOptions
	robotsChecker  *robots.Checker
	sanitizePolicy *bluemonday.Policy
}

// New builds a Generator. client is typically the Fetcher's shared HTTP
// client (see Fetcher.HTTPClient) so linked-content fetches reuse the same
// connection pool and SSRF protections as the primary manifest fetch.
// robotsChecker may be nil, which disables the RespectRobotsTxt option
// regardless of how it's set.
func New(client *http.Client, fetchOpts config.FetchOptions, robotsChecker *robots.Checker) *Generator {
	if client == nil {
		client = &http.Client{Timeout: fetchOpts.GetTimeout()}
	}
	return &Generator{
		client:         client,
		fetchOpts:      fetchOpts,
		robotsChecker:  robotsChecker,
		sanitizePolicy: bluemonday.UGCPolicy(),
	}
}

// GenerateAsync fetches every included section's linked entries, cleans
// and assembles them into one context string, and enforces opts.MaxTokens
// by dropping optional sections first and then truncating from the last
// section backward. doc must not be nil.
func (g *Generator) GenerateAsync(ctx context.Context, doc *document.Document, opts config.GenerateOptions) (Result, error) {
	if doc == nil {
		panic("contextgen: document must not be nil")
	}

	estimator := opts.TokenEstimator
	if estimator == nil {
		estimator = DefaultTokenEstimator
	}

	type section struct {
		name       string
		isOptional bool
		entries    []document.Entry
	}

	var candidates []section
	var sectionsOmitted []string
	for _, sec := range doc.Sections {
		if sec.IsOptional && !opts.IncludeOptional {
			sectionsOmitted = append(sectionsOmitted, sec.Name)
			continue
		}
		candidates = append(candidates, section{name: sec.Name, isOptional: sec.IsOptional, entries: sec.Entries})
	}

	bodies := make([][]string, len(candidates))
	errs := make([][]string, len(candidates))
	for i := range candidates {
		bodies[i] = make([]string, len(candidates[i].entries))
		errs[i] = make([]string, len(candidates[i].entries))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.GetConcurrency())
	for si, sec := range candidates {
		for ei, entry := range sec.entries {
			si, ei, entry := si, ei, entry
			eg.Go(func() error {
				body, err := g.fetchAndClean(egCtx, entry.URL, opts)
				if err != nil {
					errs[si][ei] = err.Error()
					bodies[si][ei] = fmt.Sprintf("[failed to fetch %s: %s]", entry.URL, err.Error())
					return nil
				}
				bodies[si][ei] = body
				return nil
			})
		}
	}
	// Per-entry failures are recorded in errs, never returned from the
	// goroutines themselves, so Wait only ever reports context
	// cancellation.
	_ = eg.Wait()
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	var fetchErrors []FetchError
	for si, sec := range candidates {
		for ei, entry := range sec.entries {
			if errs[si][ei] != "" {
				fetchErrors = append(fetchErrors, FetchError{URL: entry.URL, Message: errs[si][ei]})
			}
		}
	}

	type built struct {
		name       string
		isOptional bool
		raw        string
	}
	kept := make([]built, len(candidates))
	for si, sec := range candidates {
		kept[si] = built{name: sec.name, isOptional: sec.isOptional, raw: strings.Join(bodies[si], "")}
	}

	render := func(b built) string {
		if !opts.GetWrapSectionsInXML() {
			return b.raw
		}
		return fmt.Sprintf("<section name=%q>%s</section>", b.name, b.raw)
	}

	assemble := func(sections []built) string {
		var sb strings.Builder
		for _, b := range sections {
			sb.WriteString(render(b))
		}
		return sb.String()
	}

	var sectionsTruncated []string

	if opts.MaxTokens > 0 {
		if estimator(assemble(kept)) > opts.MaxTokens {
			var withoutOptional []built
			for _, b := range kept {
				if b.isOptional {
					sectionsOmitted = append(sectionsOmitted, b.name)
					continue
				}
				withoutOptional = append(withoutOptional, b)
			}
			kept = withoutOptional
		}

		truncatedSet := make(map[string]bool)
		for i := len(kept) - 1; i >= 0 && estimator(assemble(kept)) > opts.MaxTokens; i-- {
			for pass := 0; pass < maxShrinkPasses; pass++ {
				current := estimator(assemble(kept))
				if current <= opts.MaxTokens {
					break
				}
				excessChars := (current - opts.MaxTokens) * charsPerToken
				targetLen := len(kept[i].raw) - excessChars
				if targetLen < 0 {
					targetLen = 0
				}
				if targetLen >= len(kept[i].raw) {
					break
				}
				kept[i].raw = truncateWithMarker(kept[i].raw, targetLen)
				truncatedSet[kept[i].name] = true
			}
		}
		for _, b := range kept {
			if truncatedSet[b.name] {
				sectionsTruncated = append(sectionsTruncated, b.name)
			}
		}
	}

	content := assemble(kept)
	if opts.MaxTokens > 0 && estimator(content) > opts.MaxTokens {
		content = enforceTokenBudget(content, opts.MaxTokens, estimator)
	}

	sectionsIncluded := make([]string, 0, len(kept))
	for _, b := range kept {
		sectionsIncluded = append(sectionsIncluded, b.name)
	}

	return Result{
		Content:               content,
		ApproximateTokenCount: estimator(content),
		SectionsIncluded:      sectionsIncluded,
		SectionsOmitted:       sectionsOmitted,
		SectionsTruncated:     sectionsTruncated,
		FetchErrors:           fetchErrors,
	}, nil
}

// fetchAndClean retrieves rawURL's body (honoring robots.txt when enabled),
// normalizes it to Markdown-ish prose, and strips HTML comments and
// data-URI image references before returning it.
func (g *Generator) fetchAndClean(ctx context.Context, rawURL string, opts config.GenerateOptions) (string, error) {
	if opts.RespectRobotsTxt && g.robotsChecker != nil {
		allowed, err := g.robotsChecker.IsAllowed(ctx, rawURL)
		if err == nil && !allowed {
			return "", fmt.Errorf("disallowed by robots.txt")
		}
	}

	body, contentType, err := g.fetchBody(ctx, rawURL)
	if err != nil {
		return "", err
	}

	isHTML := strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml")

	if isHTML && opts.SanitizeHTML {
		body = g.sanitizePolicy.Sanitize(body)
	}
	if isHTML {
		md, err := htmltomarkdown.ConvertString(body)
		if err == nil {
			body = md
		}
	}

	return cleanBody(body), nil
}

// fetchBody GETs rawURL with the Fetcher's per-attempt timeout and retry
// count, retrying network errors and 5xx responses with exponential
// backoff (without the primary fetcher's jitter).
func (g *Generator) fetchBody(ctx context.Context, rawURL string) (string, string, error) {
	maxAttempts := g.fetchOpts.GetMaxRetries() + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.fetchOpts.GetTimeout())
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			cancel()
			return "", "", err
		}
		req.Header.Set("User-Agent", g.fetchOpts.GetUserAgent())

		resp, err := g.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			if attempt < maxAttempts {
				if sleepErr := sleepBackoff(ctx, attempt, g.fetchOpts.GetRetryDelay()); sleepErr != nil {
					return "", "", sleepErr
				}
				continue
			}
			break
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, g.fetchOpts.GetMaxResponseSize()))
		resp.Body.Close()
		cancel()

		if readErr != nil {
			lastErr = readErr
			break
		}

		if resp.StatusCode >= 500 && attempt < maxAttempts {
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			if sleepErr := sleepBackoff(ctx, attempt, g.fetchOpts.GetRetryDelay()); sleepErr != nil {
				return "", "", sleepErr
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		return string(data), resp.Header.Get("Content-Type"), nil
	}

	return "", "", lastErr
}

func sleepBackoff(ctx context.Context, attempt int, base time.Duration) error {
	delay := base * time.Duration(1<<uint(attempt-1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	htmlCommentPattern  = regexp.MustCompile(`(?s)<!--.*?-->`)
	dataURIImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(data:[^)]*\)`)
)

// cleanBody strips HTML comments (including those spanning lines) and
// Markdown image references whose URL is a data: URI, preserving all
// surrounding text.
func cleanBody(body string) string {
	body = htmlCommentPattern.ReplaceAllString(body, "")
	body = dataURIImagePattern.ReplaceAllString(body, "")
	return body
}
