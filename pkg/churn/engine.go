// Package churn computes the monthly churn summary from the cleaned
// subscription table: starts, cancellations, active-customer counts and the
// resulting churn rate per calendar month.
package churn

import (
	"errors"
	"math"

	"github.com/lessonloop/churnkit/pkg/subscription"
)

var ErrNoData = errors.New("no subscription records with usable dates")

// MonthlyMetrics is one row of the churn summary.
type MonthlyMetrics struct {
	Month         subscription.Month
	Starts        int
	Cancellations int
	// Actives counts customers active as of the first instant of the month:
	// start <= month start and (no end date or end >= month start).
	Actives int
	// ChurnRate is Cancellations/Actives. It is NaN exactly when Actives is
	// zero and is never clamped: data issues can legitimately push it above 1
	// and that must stay representable.
	ChurnRate float64
}

// CustomerRef identifies a customer in the per-month start/cancel listings.
type CustomerRef struct {
	CustomerID subscription.CustomerID
	Name       string
	Email      string
}

// Summary is the result of a churn analysis.
type Summary struct {
	// Rows is the month-ordered churn table, with contiguous head and tail
	// runs of zero-active months trimmed off. Interior zero-active months
	// are kept (their rate is NaN).
	Rows []MonthlyMetrics
	// Started and Canceled list the customers behind each month's counts
	// over the full untrimmed window. Canceled feeds the recurring-revenue-
	// lost computation.
	Started  map[subscription.Month][]CustomerRef
	Canceled map[subscription.Month][]CustomerRef
}

// Window bounds an analysis. Zero-value months derive the bound from the
// data: From defaults to the earliest start month, To to the latest start or
// cancellation month observed.
type Window struct {
	From subscription.Month
	To   subscription.Month
}

// Engine computes churn metrics.
type Engine struct {
	endColumn subscription.EndColumn
}

// Option configures an Engine.
type Option func(*Engine)

// WithEndColumn selects which date column counts as a cancellation.
func WithEndColumn(col subscription.EndColumn) Option {
	return func(e *Engine) { e.endColumn = col }
}

// NewEngine returns an Engine counting cancellations by the canceled-at
// column.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{endColumn: subscription.EndColumnCanceledAt}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze computes the churn summary over the window derived from the data.
func (e *Engine) Analyze(records []subscription.Record) (Summary, error) {
	return e.AnalyzeWindow(records, Window{})
}

// AnalyzeWindow computes the churn summary over an explicit window.
// Returns ErrNoData when no record carries a usable start date.
func (e *Engine) AnalyzeWindow(records []subscription.Record, window Window) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, ErrNoData
	}

	from, to := window.From, window.To
	if from.IsZero() || to.IsZero() {
		derivedFrom, derivedTo, ok := e.deriveWindow(records)
		if !ok {
			return Summary{}, ErrNoData
		}
		if from.IsZero() {
			from = derivedFrom
		}
		if to.IsZero() {
			to = derivedTo
		}
	}

	months := subscription.MonthsBetween(from, to)
	if len(months) == 0 {
		return Summary{}, ErrNoData
	}

	summary := Summary{
		Started:  make(map[subscription.Month][]CustomerRef),
		Canceled: make(map[subscription.Month][]CustomerRef),
	}

	starts := make(map[subscription.Month]int)
	cancels := make(map[subscription.Month]int)
	for _, r := range records {
		ref := CustomerRef{CustomerID: r.CustomerID, Name: r.Name, Email: r.Email}
		startMonth := subscription.MonthOf(r.StartDate)
		if !startMonth.Before(from) && !startMonth.After(to) {
			starts[startMonth]++
			summary.Started[startMonth] = append(summary.Started[startMonth], ref)
		}
		if end := r.End(e.endColumn); end != nil {
			endMonth := subscription.MonthOf(*end)
			if !endMonth.Before(from) && !endMonth.After(to) {
				cancels[endMonth]++
				summary.Canceled[endMonth] = append(summary.Canceled[endMonth], ref)
			}
		}
	}

	rows := make([]MonthlyMetrics, 0, len(months))
	for _, m := range months {
		actives := e.countActives(records, m)
		rate := math.NaN()
		if actives > 0 {
			rate = float64(cancels[m]) / float64(actives)
		}
		rows = append(rows, MonthlyMetrics{
			Month:         m,
			Starts:        starts[m],
			Cancellations: cancels[m],
			Actives:       actives,
			ChurnRate:     rate,
		})
	}

	summary.Rows = trimZeroActiveEdges(rows)
	return summary, nil
}

func (e *Engine) deriveWindow(records []subscription.Record) (from, to subscription.Month, ok bool) {
	for _, r := range records {
		startMonth := subscription.MonthOf(r.StartDate)
		if !ok {
			from, to, ok = startMonth, startMonth, true
		}
		if startMonth.Before(from) {
			from = startMonth
		}
		if startMonth.After(to) {
			to = startMonth
		}
		if end := r.End(e.endColumn); end != nil {
			if endMonth := subscription.MonthOf(*end); endMonth.After(to) {
				to = endMonth
			}
		}
	}
	return from, to, ok
}

func (e *Engine) countActives(records []subscription.Record, m subscription.Month) int {
	monthStart := m.Time()
	count := 0
	for _, r := range records {
		if r.StartDate.After(monthStart) {
			continue
		}
		end := r.End(e.endColumn)
		if end == nil || !end.Before(monthStart) {
			count++
		}
	}
	return count
}

// trimZeroActiveEdges removes only the contiguous head and tail runs of
// zero-active months, never interior ones. Avoids spurious NaN rates at the
// edges of sparse data.
func trimZeroActiveEdges(rows []MonthlyMetrics) []MonthlyMetrics {
	first, last := -1, -1
	for i, row := range rows {
		if row.Actives > 0 {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 {
		return nil
	}
	return rows[first : last+1]
}
