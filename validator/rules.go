package validator

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/llmstxtkit/llmstxtkit/document"
	urlutil "github.com/llmstxtkit/llmstxtkit/urlutil"
)

var errRelativeURL = errors.New("entry url is relative")

// Rule ID constants — the validator's stable, machine-readable vocabulary.
const (
	RuleRequiredH1Missing    = "REQUIRED_H1_MISSING"
	RuleMultipleH1Found      = "MULTIPLE_H1_FOUND"
	RuleBlockquoteMalformed  = "BLOCKQUOTE_MALFORMED"
	RuleSectionEmpty         = "SECTION_EMPTY"
	RuleEntryURLInvalid      = "ENTRY_URL_INVALID"
	RuleEntryURLUnreachable  = "ENTRY_URL_UNREACHABLE"
	RuleEntryURLRedirected   = "ENTRY_URL_REDIRECTED"
	RuleContentStale         = "CONTENT_STALE"
	RuleEntryURLRelative     = "ENTRY_URL_RELATIVE"
	RuleUnexpectedHeading    = "UNEXPECTED_HEADING_LEVEL"
	RuleContentOutsideStruct = "CONTENT_OUTSIDE_STRUCTURE"
)

func builtinRules() []Rule {
	return []Rule{
		diagnosticPassthroughRule{id: RuleRequiredH1Missing, diagCode: document.DiagRequiredH1Missing, severity: document.SeverityError},
		diagnosticPassthroughRule{id: RuleMultipleH1Found, diagCode: document.DiagMultipleH1Found, severity: document.SeverityError},
		diagnosticPassthroughRule{id: RuleBlockquoteMalformed, diagCode: document.DiagBlockquoteMalformed, severity: document.SeverityWarning},
		diagnosticPassthroughRule{id: RuleEntryURLRelative, diagCode: document.DiagEntryURLRelative, severity: document.SeverityWarning},
		diagnosticPassthroughRule{id: RuleUnexpectedHeading, diagCode: document.DiagUnexpectedHeading, severity: document.SeverityWarning},
		diagnosticPassthroughRule{id: RuleContentOutsideStruct, diagCode: document.DiagContentOutsideEntry, severity: document.SeverityWarning},
		entryURLInvalidRule{},
		sectionEmptyRule{},
		entryURLUnreachableRule{},
		entryURLRedirectedRule{},
		contentStaleRule{},
	}
}

// diagnosticPassthroughRule promotes a parser Diagnostic with a matching
// Code into a ValidationIssue. This is how the Open Question about
// matching structured codes rather than message substrings is resolved:
// every mapping here keys on document.Diagnostic.Code.
type diagnosticPassthroughRule struct {
	id       string
	diagCode string
	severity document.Severity
}

func (r diagnosticPassthroughRule) ID() string { return r.id }

func (r diagnosticPassthroughRule) Evaluate(_ context.Context, doc *document.Document, _ config.ValidatorOptions, _ *http.Client) []Issue {
	var issues []Issue
	for _, diag := range doc.Diagnostics {
		if diag.Code == r.diagCode {
			issues = append(issues, Issue{
				Severity: r.severity,
				Rule:     r.id,
				Message:  diag.Message,
				Location: lineLocation(diag.Line),
			})
		}
	}
	return issues
}

func lineLocation(line int) string {
	if line == 0 {
		return ""
	}
	return "line " + strconv.Itoa(line)
}

// entryURLInvalidRule fires on ENTRY_URL_INVALID diagnostics — entries the
// parser already dropped for using a non-http(s) or unparseable URL — and
// upgrades the parser's ENTRY_URL_RELATIVE warnings to this error as well.
type entryURLInvalidRule struct{}

func (entryURLInvalidRule) ID() string { return RuleEntryURLInvalid }

func (entryURLInvalidRule) Evaluate(_ context.Context, doc *document.Document, _ config.ValidatorOptions, _ *http.Client) []Issue {
	var issues []Issue
	for _, diag := range doc.Diagnostics {
		if diag.Code == document.DiagEntryURLInvalid || diag.Code == document.DiagEntryURLRelative {
			issues = append(issues, Issue{Severity: document.SeverityError, Rule: RuleEntryURLInvalid, Message: diag.Message, Location: lineLocation(diag.Line)})
		}
	}
	return issues
}

// sectionEmptyRule fires when a section has zero entries.
type sectionEmptyRule struct{}

func (sectionEmptyRule) ID() string { return RuleSectionEmpty }

func (sectionEmptyRule) Evaluate(_ context.Context, doc *document.Document, _ config.ValidatorOptions, _ *http.Client) []Issue {
	var issues []Issue
	for _, sec := range doc.Sections {
		if len(sec.Entries) == 0 {
			issues = append(issues, Issue{
				Severity: document.SeverityWarning,
				Rule:     RuleSectionEmpty,
				Message:  "section \"" + sec.Name + "\" has no entries",
			})
		}
	}
	return issues
}

// entryURLUnreachableRule issues a HEAD request per entry URL when
// CheckLinkedURLs is enabled; a non-2xx response is "unreachable". A
// per-URL probe failure is reported as unreachable for that URL only — it
// never fails the overall validation.
type entryURLUnreachableRule struct{}

func (entryURLUnreachableRule) ID() string { return RuleEntryURLUnreachable }

func (entryURLUnreachableRule) Evaluate(ctx context.Context, doc *document.Document, opts config.ValidatorOptions, client *http.Client) []Issue {
	if !opts.CheckLinkedURLs || client == nil {
		return nil
	}

	var issues []Issue
	for _, entry := range doc.AllEntries() {
		status, err := probeHead(ctx, client, entry.URL, opts.GetURLCheckTimeout())
		if err != nil {
			issues = append(issues, Issue{Severity: document.SeverityWarning, Rule: RuleEntryURLUnreachable, Message: "HEAD probe failed: " + err.Error(), Location: entry.URL})
			continue
		}
		if status < 200 || status >= 300 {
			if status >= 300 && status < 400 {
				continue // handled by entryURLRedirectedRule
			}
			issues = append(issues, Issue{Severity: document.SeverityWarning, Rule: RuleEntryURLUnreachable, Message: "HEAD returned non-2xx status", Location: entry.URL})
		}
	}
	return issues
}

// entryURLRedirectedRule flags entry URLs whose HEAD probe returned a 3xx.
type entryURLRedirectedRule struct{}

func (entryURLRedirectedRule) ID() string { return RuleEntryURLRedirected }

func (entryURLRedirectedRule) Evaluate(ctx context.Context, doc *document.Document, opts config.ValidatorOptions, client *http.Client) []Issue {
	if !opts.CheckLinkedURLs || client == nil {
		return nil
	}

	var issues []Issue
	for _, entry := range doc.AllEntries() {
		status, err := probeHead(ctx, client, entry.URL, opts.GetURLCheckTimeout())
		if err != nil {
			continue
		}
		if status >= 300 && status < 400 {
			issues = append(issues, Issue{Severity: document.SeverityWarning, Rule: RuleEntryURLRedirected, Message: "HEAD returned a redirect", Location: entry.URL})
		}
	}
	return issues
}

// contentStaleRule flags an entry whose Last-Modified is newer than the
// llms.txt manifest's own reference timestamp, when CheckFreshness is
// enabled and a reference timestamp was supplied.
type contentStaleRule struct{}

func (contentStaleRule) ID() string { return RuleContentStale }

func (contentStaleRule) Evaluate(ctx context.Context, doc *document.Document, opts config.ValidatorOptions, client *http.Client) []Issue {
	if !opts.CheckFreshness || client == nil || opts.FreshnessReference.IsZero() {
		return nil
	}

	var issues []Issue
	for _, entry := range doc.AllEntries() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, entry.URL, nil)
		if err != nil {
			continue
		}
		timeoutCtx, cancel := context.WithTimeout(ctx, opts.GetURLCheckTimeout())
		req = req.WithContext(timeoutCtx)
		resp, err := client.Do(req)
		cancel()
		if err != nil {
			continue
		}
		resp.Body.Close()

		lastModified := resp.Header.Get("Last-Modified")
		if lastModified == "" {
			continue
		}
		t, err := http.ParseTime(lastModified)
		if err != nil {
			continue
		}
		if t.After(opts.FreshnessReference) {
			issues = append(issues, Issue{Severity: document.SeverityWarning, Rule: RuleContentStale, Message: "linked content is newer than the manifest", Location: entry.URL})
		}
	}
	return issues
}

func probeHead(ctx context.Context, client *http.Client, rawURL string, timeout time.Duration) (int, error) {
	if urlutil.IsRelative(rawURL) {
		return 0, errRelativeURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(timeoutCtx)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
