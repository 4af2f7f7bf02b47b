package progress

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day an entry is reported against
// =============================================================================

// DateLayout is the wire and storage format for entry dates.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC. Progress is reported per day, never per
// instant, so two dates compare equal whenever they name the same day.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day (in t's own location).
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals in tests and scenarios.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
