// Package summarize turns a bounded change diff into a narrative analysis
// via an external generative model. The wire boundary is deliberately
// tolerant: models return fenced, prefixed, or otherwise decorated JSON,
// and a change must never be lost because the narrative failed.
package summarize

import "context"

// Analysis is the structured narrative for one detected change.
type Analysis struct {
	Summary     string   `json:"summary"`
	Intent      string   `json:"intent"`
	Suggestions []string `json:"suggestions"`
}

// Analyzer produces an Analysis for a named site given the bounded lists of
// added and removed lines.
type Analyzer interface {
	Analyze(ctx context.Context, siteName string, added, removed []string) (*Analysis, error)
}

// Fallback returns the fixed placeholder used when analysis fails. Callers
// persist it so the change record is complete even without a narrative.
func Fallback() *Analysis {
	return &Analysis{
		Summary:     "A change was detected, but detailed analysis failed.",
		Intent:      "Could not be determined.",
		Suggestions: []string{"Review the site directly."},
	}
}
