// Package validator runs an extensible rule set over a parsed Document and
// aggregates the results into a ValidationReport. The rule registry is a
// plain ordered slice of Rule values identified by a stable ID — not a
// class hierarchy — so a new rule is a new value appended to the slice,
// generalizing the llms.txt toolkit's earlier rule-chain-over-content
// pattern from content transforms to validation checks.
package validator

import (
	"context"
	"net/http"
	"sort"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/llmstxtkit/llmstxtkit/document"
)

// Severity mirrors document.Severity for validation issues.
type Severity = document.Severity

// Issue is a single finding produced by a rule.
type Issue struct {
	Severity Severity
	Rule     string
	Message  string
	Location string
}

// Report aggregates every Issue produced by the rule set for one document.
type Report struct {
	IsValid   bool
	Errors    []Issue
	Warnings  []Issue
	AllIssues []Issue
}

// Rule is a pure (mostly — network rules perform bounded I/O) evaluator
// identified by a stable ID.
type Rule interface {
	ID() string
	Evaluate(ctx context.Context, doc *document.Document, opts config.ValidatorOptions, client *http.Client) []Issue
}

// Validator dispatches a Document through a registered set of Rules.
type Validator struct {
	rules  []Rule
	client *http.Client
}

// New builds a Validator with the built-in rule set plus any extra rules,
// using client for any network-dependent rule (HEAD probes). A nil client
// disables network rules even if CheckLinkedURLs/CheckFreshness are set.
func New(client *http.Client, extra ...Rule) *Validator {
	rules := append([]Rule{}, builtinRules()...)
	rules = append(rules, extra...)
	return &Validator{rules: rules, client: client}
}

// ValidateAsync runs every registered rule over doc and aggregates the
// results. doc must not be nil (programmer error otherwise).
func (v *Validator) ValidateAsync(ctx context.Context, doc *document.Document, opts config.ValidatorOptions) Report {
	if doc == nil {
		panic("validator: document must not be nil")
	}

	var issues []Issue
	for _, rule := range v.rules {
		issues = append(issues, rule.Evaluate(ctx, doc, opts, v.client)...)
	}

	return buildReport(issues)
}

func buildReport(issues []Issue) Report {
	var errs, warns []Issue
	for _, issue := range issues {
		if issue.Severity == document.SeverityError {
			errs = append(errs, issue)
		} else {
			warns = append(warns, issue)
		}
	}

	// Errors first, then warnings; insertion order preserved within each
	// group (sort.SliceStable is a no-op here since issues already arrive
	// grouped by rule evaluation order, but this keeps the ordering
	// contract explicit and stable if rule order ever changes).
	all := make([]Issue, 0, len(errs)+len(warns))
	all = append(all, errs...)
	all = append(all, warns...)
	sort.SliceStable(all, func(i, j int) bool {
		return severityRank(all[i].Severity) < severityRank(all[j].Severity)
	})

	return Report{
		IsValid:   len(errs) == 0,
		Errors:    errs,
		Warnings:  warns,
		AllIssues: all,
	}
}

func severityRank(s Severity) int {
	if s == document.SeverityError {
		return 0
	}
	return 1
}
