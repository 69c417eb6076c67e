package analysis

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

// DuplicationSummary describes how duplicate identities were handled in
// the last load.
type DuplicationSummary struct {
	// Groups holds one audit row per resolved duplicate group.
	Groups []dedup.GroupSummary
	// UnresolvedGroups counts multi-member groups that had no guide entry
	// and passed through unresolved.
	UnresolvedGroups int
	// RowsCollapsed counts input rows removed by merging.
	RowsCollapsed int
}

// Duplication returns the duplicate-resolution audit for the last load.
func (a *Analyzer) Duplication() (DuplicationSummary, error) {
	if !a.loaded {
		return DuplicationSummary{}, ErrDataNotLoaded
	}

	s := DuplicationSummary{
		Groups:           slices.Clone(a.dedupResult.Summary),
		UnresolvedGroups: len(a.dedupResult.Unresolved),
	}
	for _, g := range s.Groups {
		s.RowsCollapsed += g.DuplicateRows
	}
	return s, nil
}

// PlanUsage aggregates the billing table for one lesson plan.
type PlanUsage struct {
	Label      string
	LessonType catalog.LessonType
	Customers  int
	Months     int // billed customer-months
	Revenue    decimal.Decimal
}

// PlanUsageSummary returns per-plan usage over the billing table, sorted
// by label.
func (a *Analyzer) PlanUsageSummary() ([]PlanUsage, error) {
	if !a.loaded {
		return nil, ErrDataNotLoaded
	}

	byLabel := make(map[string]*PlanUsage)
	customers := make(map[string]map[subscription.CustomerID]struct{})
	for _, row := range a.billing {
		u, ok := byLabel[row.PlanLabel]
		if !ok {
			u = &PlanUsage{Label: row.PlanLabel, LessonType: row.LessonType}
			byLabel[row.PlanLabel] = u
			customers[row.PlanLabel] = make(map[subscription.CustomerID]struct{})
		}
		u.Months++
		u.Revenue = u.Revenue.Add(row.MonthlyPrice)
		customers[row.PlanLabel][row.CustomerID] = struct{}{}
	}

	out := make([]PlanUsage, 0, len(byLabel))
	for label, u := range byLabel {
		u.Customers = len(customers[label])
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b PlanUsage) int {
		return strings.Compare(a.Label, b.Label)
	})
	return out, nil
}

// Overview is the top-level summary of one analysis run.
type Overview struct {
	RunID            string
	Customers        int
	BillingRows      int
	MonthsAnalyzed   int
	TotalRevenue     decimal.Decimal
	TotalChurnedRRL  decimal.Decimal
	RejectedRows     int
	UnmatchedAmounts int
	DroppedPeriods   int
}

// Overview summarizes the run so far. Churn and revenue figures are filled
// only for stages that have run.
func (a *Analyzer) Overview() (Overview, error) {
	if !a.loaded {
		return Overview{}, ErrDataNotLoaded
	}

	ids := make(map[subscription.CustomerID]struct{}, len(a.records))
	for _, r := range a.records {
		ids[r.CustomerID] = struct{}{}
	}

	var revenueTotal decimal.Decimal
	for _, row := range a.billing {
		revenueTotal = revenueTotal.Add(row.MonthlyPrice)
	}

	o := Overview{
		RunID:            a.runID.String(),
		Customers:        len(ids),
		BillingRows:      len(a.billing),
		TotalRevenue:     revenueTotal,
		RejectedRows:     a.loadReport.RejectedStartDates,
		UnmatchedAmounts: len(a.buildReport.UnmatchedAmounts),
		DroppedPeriods:   a.buildReport.DroppedPeriods,
	}
	if a.churnDone {
		o.MonthsAnalyzed = len(a.churnSummary.Rows)
	}
	if a.rrlDone {
		o.TotalChurnedRRL = a.rrl.Total
	}
	return o, nil
}
