// Package filter provides composable pre-filters over the subscription
// table: dropping test accounts, implausibly short lifecycles, irrelevant
// statuses and out-of-range amounts before any grouping or metric runs.
package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lessonloop/churnkit/pkg/subscription"
)

// Filter decides whether a record is excluded from analysis.
type Filter interface {
	Exclude(r subscription.Record) bool
	Description() string
}

// Chain applies a sequence of filters; a record survives only if no filter
// excludes it.
type Chain struct {
	filters []Filter
}

// NewChain builds a chain from the given filters.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: slices.Clone(filters)}
}

// Add appends a filter and returns the chain for chaining.
func (c *Chain) Add(f Filter) *Chain {
	c.filters = append(c.filters, f)
	return c
}

// Apply returns the records surviving every filter, preserving input order.
// The input slice is never modified.
func (c *Chain) Apply(records []subscription.Record) []subscription.Record {
	if len(c.filters) == 0 {
		return subscription.CloneRecords(records)
	}

	var out []subscription.Record
	for _, r := range records {
		excluded := false
		for _, f := range c.filters {
			if f.Exclude(r) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Descriptions lists the active filters for reporting.
func (c *Chain) Descriptions() []string {
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.Description()
	}
	return out
}

// TestAccountFilter excludes internal/test accounts. A record is excluded
// when its email is on the exclusion list or when any marker substring
// appears in the normalized email or name; emails on the exception list are
// always kept.
type TestAccountFilter struct {
	Markers    []string
	Exclusions []string
	Exceptions []string
}

func (f TestAccountFilter) Exclude(r subscription.Record) bool {
	email := subscription.Normalize(r.Email)
	name := subscription.Normalize(r.Name)

	if slices.Contains(f.Exclusions, email) {
		return true
	}
	if slices.Contains(f.Exceptions, email) {
		return false
	}
	for _, marker := range f.Markers {
		if strings.Contains(email, marker) || strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func (f TestAccountFilter) Description() string {
	return fmt.Sprintf("exclude test accounts (markers: %s)", strings.Join(f.Markers, ", "))
}

// ShortPeriodFilter excludes subscriptions that lived less than MinDuration.
// Open records (no end date) are never excluded: their duration is unknown.
type ShortPeriodFilter struct {
	MinDuration time.Duration
	EndColumn   subscription.EndColumn
}

// DefaultMinSubscriptionDuration is the shortest lifecycle treated as a real
// subscription rather than a trial-and-refund artefact.
const DefaultMinSubscriptionDuration = 30 * 24 * time.Hour

func (f ShortPeriodFilter) Exclude(r subscription.Record) bool {
	min := f.MinDuration
	if min <= 0 {
		min = DefaultMinSubscriptionDuration
	}
	col := f.EndColumn
	if col == "" {
		col = subscription.EndColumnCanceledAt
	}
	d, ok := r.Duration(col)
	return ok && d < min
}

func (f ShortPeriodFilter) Description() string {
	min := f.MinDuration
	if min <= 0 {
		min = DefaultMinSubscriptionDuration
	}
	return fmt.Sprintf("exclude subscriptions shorter than %d days", int(min.Hours()/24))
}

// StatusFilter excludes records with any of the given statuses.
type StatusFilter struct {
	Excluded []subscription.Status
}

// DefaultExcludedStatuses never represent a paying lifecycle.
var DefaultExcludedStatuses = []subscription.Status{
	subscription.StatusTrialing,
	subscription.StatusIncompleteExpired,
}

func (f StatusFilter) Exclude(r subscription.Record) bool {
	excluded := f.Excluded
	if excluded == nil {
		excluded = DefaultExcludedStatuses
	}
	return slices.Contains(excluded, r.Status)
}

func (f StatusFilter) Description() string {
	excluded := f.Excluded
	if excluded == nil {
		excluded = DefaultExcludedStatuses
	}
	parts := make([]string, len(excluded))
	for i, s := range excluded {
		parts[i] = string(s)
	}
	return "exclude statuses: " + strings.Join(parts, ", ")
}

// AmountRangeFilter keeps records whose amount lies in [Min, Max].
type AmountRangeFilter struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func (f AmountRangeFilter) Exclude(r subscription.Record) bool {
	if r.Amount.LessThan(f.Min) {
		return true
	}
	return !f.Max.IsZero() && r.Amount.GreaterThan(f.Max)
}

func (f AmountRangeFilter) Description() string {
	if f.Max.IsZero() {
		return fmt.Sprintf("exclude amounts below %s", f.Min)
	}
	return fmt.Sprintf("only include amounts between %s and %s", f.Min, f.Max)
}
