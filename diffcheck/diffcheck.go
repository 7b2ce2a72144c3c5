// Package diffcheck computes line-level deltas between two normalized
// content snapshots and classifies their magnitude.
package diffcheck

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// MaxReportedLines bounds the added/removed line lists in a Result. The cap
// keeps payloads small and bounds the downstream summarization prompt.
const MaxReportedLines = 10

// Importance is the coarse significance classification of a change.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Rank orders importances: low < medium < high.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 2
	case ImportanceMedium:
		return 1
	default:
		return 0
	}
}

// Result is the structured outcome of comparing two snapshots.
type Result struct {
	HasChanges   bool     `json:"hasChanges"`
	ChangesCount int      `json:"changesCount"`
	AddedLines   []string `json:"addedLines"`
	RemovedLines []string `json:"removedLines"`
	Summary      string   `json:"summary"`
}

// Compare computes a line-oriented LCS diff between the previous and
// current texts. Lines present only in current are added, lines present
// only in previous are removed. Blank and whitespace-only lines are
// excluded from counts and from the reported line lists.
func Compare(previous, current string) *Result {
	a := difflib.SplitLines(previous)
	b := difflib.SplitLines(current)

	var added, removed []string
	count := 0

	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'd', 'r':
			for _, line := range a[op.I1:op.I2] {
				if line = strings.TrimSpace(line); line != "" {
					removed = append(removed, line)
					count++
				}
			}
		}
		switch op.Tag {
		case 'i', 'r':
			for _, line := range b[op.J1:op.J2] {
				if line = strings.TrimSpace(line); line != "" {
					added = append(added, line)
					count++
				}
			}
		}
	}

	if len(added) > MaxReportedLines {
		added = added[:MaxReportedLines]
	}
	if len(removed) > MaxReportedLines {
		removed = removed[:MaxReportedLines]
	}

	return &Result{
		HasChanges:   count > 0,
		ChangesCount: count,
		AddedLines:   added,
		RemovedLines: removed,
		Summary:      bucket(count),
	}
}

// Classify maps a change count to an importance tier. Pure and monotonic:
// same input always yields the same output, and a larger count never yields
// a lower tier.
func Classify(changesCount int) Importance {
	switch {
	case changesCount > 50:
		return ImportanceHigh
	case changesCount > 10:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

func bucket(count int) string {
	switch {
	case count == 0:
		return "no change"
	case count < 10:
		return "minor"
	case count < 50:
		return "moderate"
	default:
		return "major"
	}
}
