package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNoPlans           = errors.New("catalog requires at least one plan")
	ErrInvalidPlan       = errors.New("invalid lesson plan configuration")
	ErrUnknownLessonType = errors.New("unknown lesson type")
)

// LessonType distinguishes the two lesson formats sold.
type LessonType string

const (
	LessonTypePrivate LessonType = "Private"
	LessonTypeGroup   LessonType = "Group"
)

// Plan describes one lesson plan tier. A plan is matched to a subscription
// row by its payment amount: every amount in CostOptions maps to this plan.
type Plan struct {
	Label          string
	LessonType     LessonType
	DurationMonths int
	TimesPerWeek   int
	CostOptions    []decimal.Decimal
}

// IncludesAmount reports whether the amount belongs to this plan's price list.
func (p Plan) IncludesAmount(amount decimal.Decimal) bool {
	for _, opt := range p.CostOptions {
		if opt.Equal(amount) {
			return true
		}
	}
	return false
}

// MonthlyPrice spreads a contract amount evenly over the plan duration.
// A 6-month plan paid 1080 up front bills 180 per month.
func (p Plan) MonthlyPrice(amount decimal.Decimal) decimal.Decimal {
	if p.DurationMonths <= 1 {
		return amount
	}
	return amount.DivRound(decimal.NewFromInt(int64(p.DurationMonths)), 2)
}

func (p Plan) validate() error {
	if p.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidPlan)
	}
	if p.LessonType != LessonTypePrivate && p.LessonType != LessonTypeGroup {
		return fmt.Errorf("%w: %q (plan %s)", ErrUnknownLessonType, p.LessonType, p.Label)
	}
	if p.DurationMonths < 1 {
		return fmt.Errorf("%w: plan %s has duration %d months", ErrInvalidPlan, p.Label, p.DurationMonths)
	}
	if p.TimesPerWeek < 1 {
		return fmt.Errorf("%w: plan %s has %d lessons per week", ErrInvalidPlan, p.Label, p.TimesPerWeek)
	}
	if len(p.CostOptions) == 0 {
		return fmt.Errorf("%w: plan %s has no cost options", ErrInvalidPlan, p.Label)
	}
	return nil
}

// Catalog is an immutable amount → plan lookup table. It is loaded once and
// passed by value into pipeline components, never held as ambient global
// state.
type Catalog struct {
	plans []Plan
}

// New builds a catalog from the given plans. Amounts may legitimately appear
// in more than one plan's price list (the historical price table reuses a few
// amounts across Private and Group tiers); ByAmount resolves such overlaps by
// catalog order, first match wins.
func New(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}

	cloned := make([]Plan, len(plans))
	for i, p := range plans {
		if err := p.validate(); err != nil {
			return nil, err
		}
		cp := p
		cp.CostOptions = append([]decimal.Decimal(nil), p.CostOptions...)
		cloned[i] = cp
	}

	return &Catalog{plans: cloned}, nil
}

// ByAmount returns the plan whose price list contains the amount.
// The second result is false when no plan matches; unmatched amounts are a
// data-quality signal the caller logs and skips, never a failure.
func (c *Catalog) ByAmount(amount decimal.Decimal) (Plan, bool) {
	for _, p := range c.plans {
		if p.IncludesAmount(amount) {
			return p, true
		}
	}
	return Plan{}, false
}

// Plans returns a copy of all plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	for i, p := range c.plans {
		cp := p
		cp.CostOptions = append([]decimal.Decimal(nil), p.CostOptions...)
		out[i] = cp
	}
	return out
}
