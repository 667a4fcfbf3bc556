package contextgen

import "strings"

// truncationMarker is appended whenever a section's content is cut to fit
// the token budget.
const truncationMarker = "[... content truncated to fit token budget ...]"

// sentenceBoundaryWindowDivisor bounds how far back sentenceBoundary will
// search from targetChars before giving up on finding a clean break,
// mirroring the windowed backward scan this package's truncation logic was
// adapted from (an HTML-tag boundary search narrowed to a fraction of the
// target offset, here applied to sentence-ending punctuation instead of
// closing tags).
const sentenceBoundaryWindowDivisor = 10

// truncateToChars cuts s to at most targetChars, preferring to break at the
// last sentence boundary (". ", "? ", or "! ") at or before the target; if
// none exists within the search window it falls back to the nearest
// whitespace boundary, and failing that cuts exactly at targetChars.
func truncateToChars(s string, targetChars int) string {
	if targetChars >= len(s) {
		return s
	}
	if targetChars <= 0 {
		return ""
	}

	window := targetChars / sentenceBoundaryWindowDivisor
	searchStart := targetChars - window
	if searchStart < 0 {
		searchStart = 0
	}

	cut := -1
	for _, sep := range []string{". ", "? ", "! "} {
		if idx := strings.LastIndex(s[searchStart:targetChars], sep); idx != -1 {
			pos := searchStart + idx + len(sep)
			if pos > cut {
				cut = pos
			}
		}
	}

	if cut != -1 {
		return s[:cut]
	}

	if idx := strings.LastIndexAny(s[searchStart:targetChars], " \t\n\r"); idx != -1 {
		return s[:searchStart+idx]
	}

	return s[:targetChars]
}

// truncateWithMarker truncates s to fit within targetChars including the
// marker's own length, appending the marker.
func truncateWithMarker(s string, targetChars int) string {
	budget := targetChars - len(truncationMarker)
	if budget < 0 {
		budget = 0
	}
	return truncateToChars(s, budget) + truncationMarker
}

// enforceTokenBudget is the last-resort guard applied to the fully
// assembled content: per-section truncation works in character space and
// always appends truncationMarker, so at very small budgets the marker
// itself (plus any XML wrapper) can keep the total over maxTokens even
// after every section has been cut. This cuts the assembled string
// directly, ignoring section and marker structure, until estimator reports
// a count at or under maxTokens.
func enforceTokenBudget(content string, maxTokens int, estimator func(string) int) string {
	for pass := 0; pass < maxShrinkPasses && estimator(content) > maxTokens; pass++ {
		excessChars := (estimator(content) - maxTokens) * charsPerToken
		if excessChars <= 0 {
			excessChars = 1
		}
		targetLen := len(content) - excessChars
		if targetLen <= 0 {
			return ""
		}
		content = content[:targetLen]
	}
	if estimator(content) > maxTokens {
		return ""
	}
	return content
}
