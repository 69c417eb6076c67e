// Package timeline reconstructs the customer×month billing table from the
// cleaned subscription table. Each subscription (or, for customers who
// switched plans mid-lifecycle, each original sub-period) becomes a contract
// period priced by the lesson plan catalog, clipped against cancellation and
// against the customer's next contract, then expanded into one row per
// calendar month. This table is the base for all revenue math.
package timeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

// Row is one customer-month of billed activity. The final table carries at
// most one Row per (CustomerID, Month) pair; when two contracts cover the
// same month the one with the later contract start wins (most recent plan
// wins, a documented policy rather than incidental sort order).
type Row struct {
	CustomerID     subscription.CustomerID
	Month          subscription.Month
	ContractStart  time.Time
	PlanLabel      string
	LessonType     catalog.LessonType
	DurationMonths int
	TimesPerWeek   int
	MonthlyPrice   decimal.Decimal
}

// ContractPeriod is a priced, clipped span of one subscription row.
type ContractPeriod struct {
	CustomerID subscription.CustomerID
	Plan       catalog.Plan
	Amount     decimal.Decimal
	Start      time.Time
	End        time.Time
}

// UnmatchedAmount records a row whose payment amount matched no catalog
// plan. These rows are excluded from the timeline and surfaced as a
// data-quality signal, never a failure.
type UnmatchedAmount struct {
	CustomerID subscription.CustomerID
	Amount     decimal.Decimal
}

// BuildReport summarizes what Build excluded.
type BuildReport struct {
	UnmatchedAmounts []UnmatchedAmount
	// DroppedPeriods counts contract periods that became inverted
	// (end before start) after clipping.
	DroppedPeriods int
}

// Builder expands cleaned subscriptions into the monthly billing table.
type Builder struct {
	catalog   *catalog.Catalog
	ceiling   time.Time
	endColumn subscription.EndColumn
}

// Option configures a Builder.
type Option func(*Builder)

// WithCeiling sets the analysis-window ceiling date. Open-ended contracts
// (never canceled) run to this date.
func WithCeiling(t time.Time) Option {
	return func(b *Builder) {
		if !t.IsZero() {
			b.ceiling = t
		}
	}
}

// WithEndColumn selects the date column treated as a contract's recorded end.
func WithEndColumn(col subscription.EndColumn) Option {
	return func(b *Builder) { b.endColumn = col }
}

// NewBuilder returns a Builder over the given catalog. The default ceiling
// is the current day; batch runs pin it via WithCeiling so reruns stay
// byte-identical.
func NewBuilder(cat *catalog.Catalog, opts ...Option) *Builder {
	b := &Builder{
		catalog:   cat,
		ceiling:   time.Now().UTC().Truncate(24 * time.Hour),
		endColumn: subscription.EndColumnCanceledAt,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the monthly billing table, sorted by customer id then
// month. Customers present in the switch table are expanded from their
// original sub-periods; their collapsed row is bypassed entirely.
func (b *Builder) Build(records []subscription.Record, switches map[subscription.CustomerID]dedup.PlanSwitch) ([]Row, BuildReport) {
	var report BuildReport

	// Step 1-3: price every row and bound its contract period.
	byCustomer := make(map[subscription.CustomerID][]ContractPeriod)
	var customerOrder []subscription.CustomerID
	seen := make(map[subscription.CustomerID]bool)

	addPeriod := func(id subscription.CustomerID, start time.Time, end *time.Time, cancel *time.Time, amount decimal.Decimal) {
		plan, ok := b.catalog.ByAmount(amount)
		if !ok {
			report.UnmatchedAmounts = append(report.UnmatchedAmounts, UnmatchedAmount{CustomerID: id, Amount: amount})
			return
		}

		contractEnd := b.ceiling
		if end != nil {
			contractEnd = *end
		}
		// Clip to the customer's cancellation when earlier.
		if cancel != nil && cancel.Before(contractEnd) {
			contractEnd = *cancel
		}

		if !seen[id] {
			seen[id] = true
			customerOrder = append(customerOrder, id)
		}
		byCustomer[id] = append(byCustomer[id], ContractPeriod{
			CustomerID: id,
			Plan:       plan,
			Amount:     amount,
			Start:      start,
			End:        contractEnd,
		})
	}

	for _, r := range records {
		cancel := r.End(b.endColumn)
		if sw, ok := switches[r.CustomerID]; ok {
			for _, p := range sw.Periods {
				addPeriod(r.CustomerID, p.Start, p.End, cancel, p.Amount)
			}
			continue
		}
		addPeriod(r.CustomerID, r.StartDate, cancel, cancel, r.Amount)
	}

	// Step 4-5: clip each period to the next chronological contract of the
	// same customer and drop periods inverted by clipping.
	collisions := make(map[rowKey]Row)
	var keyOrder []rowKey

	for _, id := range customerOrder {
		periods := byCustomer[id]
		sort.SliceStable(periods, func(i, j int) bool {
			return periods[i].Start.Before(periods[j].Start)
		})
		for i := range periods {
			if i+1 < len(periods) {
				nextStart := periods[i+1].Start.AddDate(0, 0, -1)
				if nextStart.Before(periods[i].End) {
					periods[i].End = nextStart
				}
			}
			if periods[i].End.Before(periods[i].Start) {
				report.DroppedPeriods++
				continue
			}

			// Step 6-7: expand whole months and resolve collisions in favor
			// of the later contract start.
			price := periods[i].Plan.MonthlyPrice(periods[i].Amount)
			from := subscription.MonthOf(periods[i].Start)
			to := subscription.MonthOf(periods[i].End)
			for _, month := range subscription.MonthsBetween(from, to) {
				key := rowKey{CustomerID: id, Month: month}
				if prev, ok := collisions[key]; ok && prev.ContractStart.After(periods[i].Start) {
					continue
				} else if !ok {
					keyOrder = append(keyOrder, key)
				}
				collisions[key] = Row{
					CustomerID:     id,
					Month:          month,
					ContractStart:  periods[i].Start,
					PlanLabel:      periods[i].Plan.Label,
					LessonType:     periods[i].Plan.LessonType,
					DurationMonths: periods[i].Plan.DurationMonths,
					TimesPerWeek:   periods[i].Plan.TimesPerWeek,
					MonthlyPrice:   price,
				}
			}
		}
	}

	rows := make([]Row, 0, len(keyOrder))
	for _, key := range keyOrder {
		rows = append(rows, collisions[key])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CustomerID != rows[j].CustomerID {
			return rows[i].CustomerID < rows[j].CustomerID
		}
		return rows[i].Month.Before(rows[j].Month)
	})

	return rows, report
}

type rowKey struct {
	CustomerID subscription.CustomerID
	Month      subscription.Month
}
