// Package dedup resolves identity groups into a cleaned subscription table.
// Each multi-member group is collapsed or kept per its curated disposition;
// collapsed groups that carried more than one payment amount additionally
// emit a plan switch so the billing timeline can split that customer's
// revenue history into sub-periods.
package dedup

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lessonloop/churnkit/pkg/identity"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

var ErrUnknownDisposition = errors.New("unknown duplicate disposition label")

// DefaultMinPlausibleDuration guards collapse aggregation against same-day
// artefact rows: a member whose lifetime is shorter than this is excluded
// from the group before min/max aggregation.
const DefaultMinPlausibleDuration = 48 * time.Hour

// SwitchPeriod is one original sub-period of a customer that changed plans
// mid-lifecycle.
type SwitchPeriod struct {
	Start  time.Time
	End    *time.Time
	Amount decimal.Decimal
}

// PlanSwitch records that a collapsed customer's members carried more than
// one distinct payment amount. The original per-row periods are preserved,
// sorted by start, so downstream billing math can price each sub-period.
type PlanSwitch struct {
	CustomerID subscription.CustomerID
	Periods    []SwitchPeriod
}

// GroupSummary is one audit row describing how a duplicate group was handled.
type GroupSummary struct {
	GroupID       int
	DuplicateRows int // member count minus the surviving row
	Name          string
	Email         string
	Disposition   Disposition
}

// Result is the cleaned output of duplicate resolution.
type Result struct {
	// Records is the cleaned subscription table, one row per surviving
	// lifecycle, in group order.
	Records []subscription.Record
	// Switches maps customers whose collapsed rows hid a plan change to
	// their original sub-periods.
	Switches map[subscription.CustomerID]PlanSwitch
	// Summary holds one audit row per resolved duplicate group.
	Summary []GroupSummary
	// Unresolved lists multi-member groups that had no guide entry. Those
	// groups pass through unresolved rather than being dropped; callers
	// should surface this as a data-quality warning.
	Unresolved []identity.Group
}

// Resolver applies disposition decisions to identity groups.
type Resolver struct {
	minPlausible time.Duration
	endColumn    subscription.EndColumn
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMinPlausibleDuration overrides the artefact-row guard threshold.
func WithMinPlausibleDuration(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.minPlausible = d
		}
	}
}

// WithEndColumn selects which date column collapse aggregation treats as the
// end of a lifecycle.
func WithEndColumn(col subscription.EndColumn) Option {
	return func(r *Resolver) { r.endColumn = col }
}

// NewResolver returns a Resolver with the default artefact guard and the
// canceled-at end column.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		minPlausible: DefaultMinPlausibleDuration,
		endColumn:    subscription.EndColumnCanceledAt,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies the guide to every group. Singleton groups pass through
// untouched and need no guide entry. Multi-member groups without one pass
// through as-is and are reported in Result.Unresolved (fail open, never
// silent data loss).
func (r *Resolver) Resolve(groups []identity.Group, guide Guide) Result {
	result := Result{
		Switches: make(map[subscription.CustomerID]PlanSwitch),
	}

	for _, group := range groups {
		if !group.IsDuplicate() {
			result.Records = append(result.Records, subscription.CloneRecords(group.Members)...)
			continue
		}

		disposition, ok := guide.ForGroup(group)
		if !ok {
			result.Unresolved = append(result.Unresolved, group)
			result.Records = append(result.Records, subscription.CloneRecords(group.Members)...)
			continue
		}

		first := group.Members[0]
		result.Summary = append(result.Summary, GroupSummary{
			GroupID:       group.ID,
			DuplicateRows: group.Size() - 1,
			Name:          first.Name,
			Email:         first.Email,
			Disposition:   disposition,
		})

		switch disposition {
		case DispositionKeptDistinct:
			result.Records = append(result.Records, subscription.CloneRecords(group.Members)...)

		case DispositionMergedActive:
			merged, sw := r.collapse(group.Members)
			for i := range merged {
				clearEnd(&merged[i], r.endColumn)
			}
			result.Records = append(result.Records, merged...)
			if sw != nil {
				result.Switches[sw.CustomerID] = *sw
			}

		case DispositionMergedClosed:
			merged, sw := r.collapse(group.Members)
			result.Records = append(result.Records, merged...)
			if sw != nil {
				result.Switches[sw.CustomerID] = *sw
			}
		}
	}

	return result
}

// collapse merges group members into a single row with start = min(start)
// and end = max(end). Members whose lifetime falls under the plausibility
// threshold are dropped first; if that leaves fewer than two rows the
// remainder is returned as-is. The second result is non-nil when the
// surviving members carried more than one distinct amount.
func (r *Resolver) collapse(members []subscription.Record) ([]subscription.Record, *PlanSwitch) {
	var kept []subscription.Record
	for _, m := range members {
		if d, ok := m.Duration(r.endColumn); ok && d < r.minPlausible {
			continue
		}
		kept = append(kept, m.Clone())
	}

	if len(kept) < 2 {
		return kept, nil
	}

	merged := kept[0].Clone()
	var maxEnd *time.Time
	for _, m := range kept[1:] {
		if m.StartDate.Before(merged.StartDate) {
			merged.StartDate = m.StartDate
		}
	}
	for _, m := range kept {
		if end := m.End(r.endColumn); end != nil {
			if maxEnd == nil || end.After(*maxEnd) {
				e := *end
				maxEnd = &e
			}
		}
	}
	setEnd(&merged, r.endColumn, maxEnd)

	return []subscription.Record{merged}, r.detectSwitch(merged.CustomerID, kept)
}

func (r *Resolver) detectSwitch(id subscription.CustomerID, members []subscription.Record) *PlanSwitch {
	distinct := make(map[string]struct{}, len(members))
	for _, m := range members {
		distinct[m.Amount.String()] = struct{}{}
	}
	if len(distinct) < 2 {
		return nil
	}

	periods := make([]SwitchPeriod, len(members))
	for i, m := range members {
		periods[i] = SwitchPeriod{
			Start:  m.StartDate,
			End:    cloneTime(m.End(r.endColumn)),
			Amount: m.Amount,
		}
	}
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].Start.Before(periods[j].Start)
	})

	return &PlanSwitch{CustomerID: id, Periods: periods}
}

func setEnd(rec *subscription.Record, col subscription.EndColumn, end *time.Time) {
	if col == subscription.EndColumnEndedAt {
		rec.EndedAt = end
		return
	}
	rec.CanceledAt = end
}

func clearEnd(rec *subscription.Record, col subscription.EndColumn) {
	setEnd(rec, col, nil)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
