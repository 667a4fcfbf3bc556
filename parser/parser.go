// Package parser turns raw llms.txt bytes into a structured document plus
// diagnostics. Parsing never fails on malformed input: whatever structure
// is recoverable is returned, and anything unexpected is recorded as a
// Diagnostic rather than raised.
//
// The heading scan (counting a line's leading '#' run to find its level
// while tracking position as it goes) is the same technique this package's
// predecessor used to build a Markdown outline: walk lines once, classify
// each by its leading syntax, and only look back far enough to decide where
// the current block ends.
package parser

import (
	"fmt"
	"strings"

	"github.com/llmstxtkit/llmstxtkit/document"
	urlutil "github.com/llmstxtkit/llmstxtkit/urlutil"
)

// MaxInputBytes is the default ceiling on input size. Larger inputs are
// rejected with a single fatal diagnostic rather than parsed, to bound
// memory use against adversarial input.
const MaxInputBytes = 5 * 1024 * 1024

// Options configures a single Parse call.
type Options struct {
	// MaxInputBytes overrides MaxInputBytes when non-zero.
	MaxInputBytes int
}

// GetMaxInputBytes returns o.MaxInputBytes, defaulting to MaxInputBytes.
func (o Options) GetMaxInputBytes() int {
	if o.MaxInputBytes <= 0 {
		return MaxInputBytes
	}
	return o.MaxInputBytes
}

// Parse turns raw llms.txt content into a Document. It never returns an
// error: malformed or oversized input still yields a Document, with the
// problem recorded in Diagnostics.
func Parse(content string) document.Document {
	return ParseWithOptions(content, Options{})
}

// ParseWithOptions is Parse with explicit size-limit configuration.
func ParseWithOptions(content string, opts Options) document.Document {
	if len(content) > opts.GetMaxInputBytes() {
		return document.Document{
			RawContent: content,
			Diagnostics: []document.Diagnostic{{
				Severity: document.SeverityError,
				Code:     document.DiagInputTooLarge,
				Message:  fmt.Sprintf("input of %d bytes exceeds the %d byte limit", len(content), opts.GetMaxInputBytes()),
			}},
		}
	}

	p := &parseState{lines: splitLines(content)}
	p.run()

	return document.Document{
		Title:       p.title,
		Summary:     p.summary,
		Freeform:    strings.TrimSpace(p.freeform.String()),
		Sections:    p.sections,
		RawContent:  content,
		Diagnostics: p.diagnostics,
	}
}

func splitLines(content string) []string {
	raw := strings.Split(content, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

type parseState struct {
	lines       []string
	title       string
	h1Count     int
	summary     string
	summarySet  bool
	freeform    strings.Builder
	sections    []document.Section
	diagnostics []document.Diagnostic
}

// phase tracks what part of the document the scanner currently believes
// it's in.
type phase int

const (
	phasePreTitle phase = iota
	phasePostTitleBeforeSummary
	phaseFreeform
	phaseSections
)

func (p *parseState) run() {
	ph := phasePreTitle
	var curSection *document.Section
	blockquoteLines := 0

	flushSection := func() {
		if curSection != nil {
			p.sections = append(p.sections, *curSection)
			curSection = nil
		}
	}

	for i, line := range p.lines {
		lineNo := i + 1
		trimmed := strings.TrimRight(line, " \t")

		switch {
		case isH1(trimmed):
			p.h1Count++
			if p.h1Count == 1 {
				p.title = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
				ph = phasePostTitleBeforeSummary
			} else {
				p.diagnostics = append(p.diagnostics, document.Diagnostic{
					Severity: document.SeverityError,
					Code:     document.DiagMultipleH1Found,
					Message:  "more than one top-level heading found",
					Line:     lineNo,
				})
			}
			continue

		case isH2(trimmed):
			flushSection()
			name := strings.TrimSpace(trimmed[2:])
			sec := document.Section{Name: name, IsOptional: name == document.OptionalSectionName}
			curSection = &sec
			ph = phaseSections
			continue

		case isHeadingLevelAtLeast3(trimmed):
			if ph == phaseSections {
				p.diagnostics = append(p.diagnostics, document.Diagnostic{
					Severity: document.SeverityWarning,
					Code:     document.DiagUnexpectedHeading,
					Message:  "heading at level 3 or deeper found inside a section",
					Line:     lineNo,
				})
			}
			// Falls through to ordinary content handling below; it is not
			// a new section boundary.
		}

		switch ph {
		case phasePreTitle:
			// Content before the title is discarded; there is nowhere to
			// attach it yet.
			continue

		case phasePostTitleBeforeSummary:
			if strings.TrimSpace(trimmed) == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "> ") || trimmed == ">" {
				if !p.summarySet {
					p.summary = strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))
					p.summarySet = true
					blockquoteLines = 1
				} else {
					blockquoteLines++
					if blockquoteLines == 2 {
						p.diagnostics = append(p.diagnostics, document.Diagnostic{
							Severity: document.SeverityWarning,
							Code:     document.DiagBlockquoteMalformed,
							Message:  "multi-line blockquote; only the first line is used as the summary",
							Line:     lineNo,
						})
					}
					p.freeform.WriteString(trimmed)
					p.freeform.WriteString("\n")
				}
				continue
			}
			ph = phaseFreeform
			p.freeform.WriteString(line)
			p.freeform.WriteString("\n")

		case phaseFreeform:
			p.freeform.WriteString(line)
			p.freeform.WriteString("\n")

		case phaseSections:
			p.handleSectionLine(curSection, trimmed, lineNo)
		}
	}

	flushSection()

	if p.h1Count == 0 {
		p.diagnostics = append(p.diagnostics, document.Diagnostic{
			Severity: document.SeverityError,
			Code:     document.DiagRequiredH1Missing,
			Message:  "no top-level (H1) heading found",
		})
	}
}

var entryPrefixes = []string{"- [", "* [", "+ ["}

func (p *parseState) handleSectionLine(sec *document.Section, trimmed string, lineNo int) {
	if sec == nil {
		return
	}
	stripped := strings.TrimLeft(trimmed, " \t")

	for _, prefix := range entryPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			if entry, ok := p.parseEntry(stripped, lineNo); ok {
				sec.Entries = append(sec.Entries, entry)
			}
			return
		}
	}

	if strings.TrimSpace(trimmed) == "" {
		return
	}

	p.diagnostics = append(p.diagnostics, document.Diagnostic{
		Severity: document.SeverityWarning,
		Code:     document.DiagContentOutsideEntry,
		Message:  "non-entry content found inside a section",
		Line:     lineNo,
	})
}

// parseEntry parses "- [Title](URL): Description" (description optional).
func (p *parseState) parseEntry(line string, lineNo int) (document.Entry, bool) {
	openBracket := strings.Index(line, "[")
	closeBracket := strings.Index(line, "]")
	if openBracket < 0 || closeBracket < openBracket {
		return document.Entry{}, false
	}

	rest := line[closeBracket+1:]
	if !strings.HasPrefix(rest, "(") {
		return document.Entry{}, false
	}
	closeParen := strings.Index(rest, ")")
	if closeParen < 0 {
		return document.Entry{}, false
	}

	title := strings.TrimSpace(line[openBracket+1 : closeBracket])
	rawURL := strings.TrimSpace(rest[1:closeParen])
	if title == "" || rawURL == "" {
		return document.Entry{}, false
	}

	description := ""
	tail := strings.TrimSpace(rest[closeParen+1:])
	if strings.HasPrefix(tail, ":") {
		description = strings.TrimSpace(strings.TrimPrefix(tail, ":"))
	}

	if urlutil.IsRelative(rawURL) {
		p.diagnostics = append(p.diagnostics, document.Diagnostic{
			Severity: document.SeverityWarning,
			Code:     document.DiagEntryURLRelative,
			Message:  fmt.Sprintf("entry url %q is relative, not absolute http(s)", rawURL),
			Line:     lineNo,
		})
		return document.Entry{}, false
	}

	if _, err := urlutil.ParseAndValidate(rawURL); err != nil {
		p.diagnostics = append(p.diagnostics, document.Diagnostic{
			Severity: document.SeverityError,
			Code:     document.DiagEntryURLInvalid,
			Message:  fmt.Sprintf("entry url %q is invalid: %v", rawURL, err),
			Line:     lineNo,
		})
		return document.Entry{}, false
	}

	return document.Entry{URL: rawURL, Title: title, Description: description}, true
}

func isH1(line string) bool {
	return strings.HasPrefix(line, "# ") || line == "#"
}

func isH2(line string) bool {
	return strings.HasPrefix(line, "## ")
}

// isHeadingLevelAtLeast3 reports whether line is a Markdown heading ("### "
// or deeper). The leading-'#'-run count is the outline-extraction
// technique this parser generalizes from heading detection to section
// detection.
func isHeadingLevelAtLeast3(line string) bool {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i < 3 {
		return false
	}
	return i < len(line) && line[i] == ' '
}
