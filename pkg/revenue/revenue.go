// Package revenue aggregates the monthly billing table into revenue series
// and attributes recurring revenue lost (RRL) to cancellation events.
package revenue

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/churn"
	"github.com/lessonloop/churnkit/pkg/subscription"
	"github.com/lessonloop/churnkit/pkg/timeline"
)

var ErrUnknownBillingTiming = errors.New("unknown billing timing policy")

// BillingTiming decides which month a cancellation's revenue loss lands in.
type BillingTiming string

const (
	// BillingInArrears attributes the loss to the cancellation month itself.
	BillingInArrears BillingTiming = "in_arrears"
	// BillingInAdvance attributes the loss to the month after cancellation:
	// the canceled month was already paid for.
	BillingInAdvance BillingTiming = "in_advance"
)

// ParseBillingTiming validates a timing policy value from configuration.
func ParseBillingTiming(s string) (BillingTiming, error) {
	switch BillingTiming(s) {
	case BillingInArrears:
		return BillingInArrears, nil
	case BillingInAdvance:
		return BillingInAdvance, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownBillingTiming, s, BillingInAdvance, BillingInArrears)
	}
}

// MonthRevenue is one month's summed billing.
type MonthRevenue struct {
	Month   subscription.Month
	Revenue decimal.Decimal
}

// MonthlySeries is the per-month revenue series with its aggregates.
type MonthlySeries struct {
	Months  []MonthRevenue
	Total   decimal.Decimal
	Average decimal.Decimal
}

// Monthly sums billing rows by month. Empty input yields an empty series.
func Monthly(rows []timeline.Row) MonthlySeries {
	sums := make(map[subscription.Month]decimal.Decimal)
	var order []subscription.Month
	for _, row := range rows {
		if _, ok := sums[row.Month]; !ok {
			order = append(order, row.Month)
		}
		sums[row.Month] = sums[row.Month].Add(row.MonthlyPrice)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	series := MonthlySeries{Months: make([]MonthRevenue, 0, len(order))}
	for _, m := range order {
		series.Months = append(series.Months, MonthRevenue{Month: m, Revenue: sums[m]})
		series.Total = series.Total.Add(sums[m])
	}
	if len(series.Months) > 0 {
		series.Average = series.Total.DivRound(decimal.NewFromInt(int64(len(series.Months))), 2)
	}
	return series
}

// MonthLoss is the recurring revenue lost attributed to one month.
type MonthLoss struct {
	LossMonth subscription.Month
	Lost      decimal.Decimal
}

// RRLResult is the recurring-revenue-lost table.
type RRLResult struct {
	ByMonth []MonthLoss
	Total   decimal.Decimal
}

// ChurnedRevenue attributes each canceled customer's most recent monthly
// price to a loss month. For a customer canceled in month M, the lost value
// is their last billing row at or before M; a customer with no billing
// history before cancellation contributes zero. The loss month is M under
// in_arrears and the following month under in_advance.
func ChurnedRevenue(rows []timeline.Row, canceled map[subscription.Month][]churn.CustomerRef, timing BillingTiming) (RRLResult, error) {
	if _, err := ParseBillingTiming(string(timing)); err != nil {
		return RRLResult{}, err
	}

	// Billing history per customer, month-ordered. Input rows are already
	// sorted by customer then month, but don't depend on it.
	history := make(map[subscription.CustomerID][]timeline.Row)
	for _, row := range rows {
		history[row.CustomerID] = append(history[row.CustomerID], row)
	}
	for id := range history {
		h := history[id]
		sort.SliceStable(h, func(i, j int) bool { return h[i].Month.Before(h[j].Month) })
	}

	losses := make(map[subscription.Month]decimal.Decimal)
	var order []subscription.Month
	for cancelMonth, refs := range canceled {
		lossMonth := cancelMonth
		if timing == BillingInAdvance {
			lossMonth = cancelMonth.Next()
		}

		seen := make(map[subscription.CustomerID]bool, len(refs))
		for _, ref := range refs {
			if seen[ref.CustomerID] {
				continue
			}
			seen[ref.CustomerID] = true

			price, ok := lastPriceAtOrBefore(history[ref.CustomerID], cancelMonth)
			if !ok {
				continue
			}
			if _, exists := losses[lossMonth]; !exists {
				order = append(order, lossMonth)
			}
			losses[lossMonth] = losses[lossMonth].Add(price)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	result := RRLResult{ByMonth: make([]MonthLoss, 0, len(order))}
	for _, m := range order {
		result.ByMonth = append(result.ByMonth, MonthLoss{LossMonth: m, Lost: losses[m]})
		result.Total = result.Total.Add(losses[m])
	}
	return result, nil
}

func lastPriceAtOrBefore(history []timeline.Row, m subscription.Month) (decimal.Decimal, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].Month.After(m) {
			return history[i].MonthlyPrice, true
		}
	}
	return decimal.Decimal{}, false
}

// Breakdown aggregates billing rows for one grouping key.
type Breakdown struct {
	TotalRevenue    decimal.Decimal
	AverageMonthly  decimal.Decimal
	Payments        int
	UniqueCustomers int
}

// ByLessonType groups billing rows by lesson type.
func ByLessonType(rows []timeline.Row) map[catalog.LessonType]Breakdown {
	return breakdown(rows, func(r timeline.Row) catalog.LessonType { return r.LessonType })
}

// ByDuration groups billing rows by plan duration in months.
func ByDuration(rows []timeline.Row) map[int]Breakdown {
	return breakdown(rows, func(r timeline.Row) int { return r.DurationMonths })
}

func breakdown[K comparable](rows []timeline.Row, key func(timeline.Row) K) map[K]Breakdown {
	totals := make(map[K]decimal.Decimal)
	counts := make(map[K]int)
	customers := make(map[K]map[subscription.CustomerID]bool)
	for _, row := range rows {
		k := key(row)
		totals[k] = totals[k].Add(row.MonthlyPrice)
		counts[k]++
		if customers[k] == nil {
			customers[k] = make(map[subscription.CustomerID]bool)
		}
		customers[k][row.CustomerID] = true
	}

	out := make(map[K]Breakdown, len(totals))
	for k, total := range totals {
		out[k] = Breakdown{
			TotalRevenue:    total,
			AverageMonthly:  total.DivRound(decimal.NewFromInt(int64(counts[k])), 2),
			Payments:        counts[k],
			UniqueCustomers: len(customers[k]),
		}
	}
	return out
}

// LifetimeValue summarizes one customer's billing history.
type LifetimeValue struct {
	TotalRevenue   decimal.Decimal
	AverageMonthly decimal.Decimal
	Months         int
}

// CustomerLifetimeValue computes lifetime value metrics for one customer.
// A customer absent from the billing table yields the zero value.
func CustomerLifetimeValue(rows []timeline.Row, id subscription.CustomerID) LifetimeValue {
	var ltv LifetimeValue
	for _, row := range rows {
		if row.CustomerID != id {
			continue
		}
		ltv.TotalRevenue = ltv.TotalRevenue.Add(row.MonthlyPrice)
		ltv.Months++
	}
	if ltv.Months > 0 {
		ltv.AverageMonthly = ltv.TotalRevenue.DivRound(decimal.NewFromInt(int64(ltv.Months)), 2)
	}
	return ltv
}

// RangeStats describes the spread of the monthly revenue series.
type RangeStats struct {
	Min decimal.Decimal
	Max decimal.Decimal
	Std float64
}

// SeriesRange computes min, max and standard deviation of a monthly revenue
// series. Returns the zero value for an empty series.
func SeriesRange(series MonthlySeries) RangeStats {
	if len(series.Months) == 0 {
		return RangeStats{}
	}

	stats := RangeStats{Min: series.Months[0].Revenue, Max: series.Months[0].Revenue}
	mean, _ := series.Total.DivRound(decimal.NewFromInt(int64(len(series.Months))), 8).Float64()
	var sumSq float64
	for _, m := range series.Months {
		if m.Revenue.LessThan(stats.Min) {
			stats.Min = m.Revenue
		}
		if m.Revenue.GreaterThan(stats.Max) {
			stats.Max = m.Revenue
		}
		v, _ := m.Revenue.Float64()
		sumSq += (v - mean) * (v - mean)
	}
	if len(series.Months) > 1 {
		stats.Std = math.Sqrt(sumSq / float64(len(series.Months)-1))
	}
	return stats
}
