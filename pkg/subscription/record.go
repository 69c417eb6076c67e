package subscription

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Status represents the provider-reported state of a subscription row.
type Status string

const (
	StatusActive             Status = "active"
	StatusCanceled           Status = "canceled"
	StatusTrialing           Status = "trialing"
	StatusIncompleteExpired  Status = "incomplete_expired"
	StatusPastDue            Status = "past_due"
)

// EndColumn selects which date column counts as the end of a subscription.
// Provider exports carry both a cancellation timestamp and an ended timestamp;
// analyses are run against one of them.
type EndColumn string

const (
	EndColumnCanceledAt EndColumn = "canceled_at"
	EndColumnEndedAt    EndColumn = "ended_at"
)

// CustomerID identifies a real customer across near-duplicate rows.
// It is derived from the normalized name and email, matching the identity
// key used for duplicate grouping.
type CustomerID string

// NewCustomerID builds a customer ID from raw name and email.
func NewCustomerID(name, email string) CustomerID {
	return CustomerID(Normalize(name) + "-" + Normalize(email))
}

var foldCaser = cases.Fold()

// Normalize lower-cases (Unicode case folding) and trims a free-text
// identity field. Grouping and customer IDs must use the same normalization
// so that guide lookups stay stable across runs.
func Normalize(s string) string {
	return foldCaser.String(strings.TrimSpace(s))
}

// Record is one raw subscription row from the provider export.
// StartDate is required; rows without a parseable start date are rejected
// at load time. CanceledAt and EndedAt are nil when the subscription is
// still open.
type Record struct {
	Name       string
	Email      string
	CustomerID CustomerID
	StartDate  time.Time
	CanceledAt *time.Time
	EndedAt    *time.Time
	Status     Status
	Amount     decimal.Decimal
	RowIndex   int // position in the source file, for audit trails
}

// End returns the record's end date under the given end-column policy,
// or nil for open subscriptions.
func (r Record) End(col EndColumn) *time.Time {
	if col == EndColumnEndedAt {
		return r.EndedAt
	}
	return r.CanceledAt
}

// IsOpen reports whether the record has no end date under the given policy.
func (r Record) IsOpen(col EndColumn) bool {
	return r.End(col) == nil
}

// Duration returns the lifetime between start and the end column, and false
// when the record is open so the caller can skip duration-based checks.
func (r Record) Duration(col EndColumn) (time.Duration, bool) {
	end := r.End(col)
	if end == nil {
		return 0, false
	}
	return end.Sub(r.StartDate), true
}

// Clone returns a deep copy. Pipeline stages treat record slices as
// immutable values, so anything that mutates must copy first.
func (r Record) Clone() Record {
	out := r
	out.CanceledAt = cloneTime(r.CanceledAt)
	out.EndedAt = cloneTime(r.EndedAt)
	return out
}

// CloneRecords deep-copies a record slice.
func CloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
