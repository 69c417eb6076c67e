package subscription

import (
	"fmt"
	"time"
)

// Month is a calendar month used as the grain of all churn and revenue
// tables. It is a pure value type: flooring a timestamp to its month depends
// only on the date components, never on time of day or zone offset.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf floors a timestamp to its calendar month.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses the "2006-01" form produced by Month.String.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// Time returns the first instant of the month in UTC.
func (m Month) Time() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the month n months later (or earlier for negative n).
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.Time().AddDate(0, n, 0))
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	return m.AddMonths(1)
}

// Compare returns -1, 0 or 1 comparing m against o chronologically.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year != o.Year:
		if m.Year < o.Year {
			return -1
		}
		return 1
	case m.Month != o.Month:
		if m.Month < o.Month {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Before reports whether m is chronologically before o.
func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }

// After reports whether m is chronologically after o.
func (m Month) After(o Month) bool { return m.Compare(o) > 0 }

// IsZero reports whether m is the zero value.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// String formats the month as "2006-01".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MonthsBetween returns every month from from to to inclusive.
// Returns nil when to is before from.
func MonthsBetween(from, to Month) []Month {
	if to.Before(from) {
		return nil
	}
	var out []Month
	for m := from; !m.After(to); m = m.Next() {
		out = append(out, m)
	}
	return out
}
