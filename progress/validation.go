package progress

import (
	"fmt"

	"github.com/truss/momentum/estimate"
)

// =============================================================================
// ENTRY-TIME VALIDATION
// =============================================================================
// Runs before SaveEntries, against the entry form of the same date.
// Errors block submission; warnings may be submitted once acknowledged.

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	CodeNegativeQuantity = "negative_quantity"
	CodeExceedsRemaining = "exceeds_remaining"
)

// Issue is one validation finding on one submitted line.
type Issue struct {
	ActivityID estimate.ActivityID
	Severity   Severity
	Code       string
	Message    string
}

type ValidationReport struct {
	Issues []Issue
}

func (r ValidationReport) HasErrors() bool {
	return len(r.Errors()) > 0
}

func (r ValidationReport) Errors() []Issue   { return r.filter(SeverityError) }
func (r ValidationReport) Warnings() []Issue { return r.filter(SeverityWarning) }

func (r ValidationReport) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// ValidateSubmissions checks a batch against the entry form for its date.
//
// The new cumulative total for a line is previousTotal + submitted, since the
// submission replaces whatever was already entered that day. A line pushing
// that total past the budgeted quantity is a warning: over-completion is
// allowed but surfaced. Lines for activities missing from the form are left
// to SaveEntries, which skips them.
func ValidateSubmissions(form *EntryForm, subs []Submission) ValidationReport {
	byActivity := make(map[estimate.ActivityID]ActivityRollup)
	if form != nil && form.Rollup != nil {
		for _, a := range form.Rollup.Activities() {
			byActivity[a.Activity.ID] = a
		}
	}

	var report ValidationReport
	for _, sub := range subs {
		if sub.QuantityCompleted.IsNegative() {
			report.Issues = append(report.Issues, Issue{
				ActivityID: sub.ActivityID,
				Severity:   SeverityError,
				Code:       CodeNegativeQuantity,
				Message:    fmt.Sprintf("%s: quantity cannot be negative", sub.ActivityID),
			})
			continue
		}

		ar, ok := byActivity[sub.ActivityID]
		if !ok {
			continue
		}

		previous := ar.CompletedQuantity
		if ar.Day != nil {
			previous = ar.Day.PreviousTotal
		}
		newTotal := previous.Add(sub.QuantityCompleted)
		if newTotal.GreaterThan(ar.Activity.Quantity) {
			report.Issues = append(report.Issues, Issue{
				ActivityID: sub.ActivityID,
				Severity:   SeverityWarning,
				Code:       CodeExceedsRemaining,
				Message: fmt.Sprintf("%s: new total %s %s exceeds budgeted %s (remaining %s)",
					sub.ActivityID, newTotal, ar.Activity.Unit, ar.Activity.Quantity,
					Remaining(ar.Activity.Quantity, previous)),
			})
		}
	}
	return report
}
