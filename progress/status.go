package progress

import "github.com/shopspring/decimal"

// ProgressStatus is derived from percent complete; it is never stored.
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "not-started"
	StatusInProgress ProgressStatus = "in-progress"
	StatusComplete   ProgressStatus = "complete"
)

var hundred = decimal.NewFromInt(100)

// PercentComplete returns round(earned / total × 100), or 0 when total is 0.
// Rounds half away from zero and does not clamp at 100.
func PercentComplete(earned, total decimal.Decimal) int64 {
	if total.IsZero() {
		return 0
	}
	return earned.Mul(hundred).Div(total).Round(0).IntPart()
}

// StatusFor maps a rounded percentage to a status.
func StatusFor(percent int64) ProgressStatus {
	switch {
	case percent <= 0:
		return StatusNotStarted
	case percent >= 100:
		return StatusComplete
	default:
		return StatusInProgress
	}
}

// Metrics is the set of derived figures attached to every rollup level.
type Metrics struct {
	TotalMH         decimal.Decimal
	EarnedMH        decimal.Decimal
	PercentComplete int64
	Status          ProgressStatus
}

// NewMetrics derives percentage and status from man-hour sums.
// Parents call this on their own sums; child percentages are never combined.
func NewMetrics(totalMH, earnedMH decimal.Decimal) Metrics {
	pct := PercentComplete(earnedMH, totalMH)
	return Metrics{
		TotalMH:         totalMH,
		EarnedMH:        earnedMH,
		PercentComplete: pct,
		Status:          StatusFor(pct),
	}
}

// RemainingMH is total minus earned, floored at zero.
func (m Metrics) RemainingMH() decimal.Decimal {
	return decimal.Max(decimal.Zero, m.TotalMH.Sub(m.EarnedMH))
}

// sum folds child metrics into a parent's man-hour totals.
func sum[T any](children []T, metricsOf func(T) Metrics) Metrics {
	total, earned := decimal.Zero, decimal.Zero
	for _, c := range children {
		m := metricsOf(c)
		total = total.Add(m.TotalMH)
		earned = earned.Add(m.EarnedMH)
	}
	return NewMetrics(total, earned)
}
