package dedup

import (
	"fmt"

	"github.com/lessonloop/churnkit/pkg/identity"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

// Disposition is the human-curated decision for how to resolve one identity
// group. Grouping is intentionally over-inclusive, so a person reviews each
// multi-member group and records one of three outcomes in the guide file.
type Disposition string

const (
	// DispositionKeptDistinct keeps every member row as a separate
	// subscription lifecycle of the same customer.
	DispositionKeptDistinct Disposition = "kept_distinct"
	// DispositionMergedActive collapses the group to one row and clears the
	// end date: the customer never actually churned, the extra rows are
	// billing artefacts.
	DispositionMergedActive Disposition = "merged_active"
	// DispositionMergedClosed collapses the group to one row spanning
	// min(start) to max(end): one true lifecycle split across rows.
	DispositionMergedClosed Disposition = "merged_closed"
)

// ParseDisposition maps a guide-file label to a Disposition. The legacy
// spreadsheet labels ("multiple start - end", "didn't_quit",
// "single_start-end") are accepted alongside the canonical names.
func ParseDisposition(label string) (Disposition, error) {
	switch subscription.Normalize(label) {
	case string(DispositionKeptDistinct), "multiple start - end":
		return DispositionKeptDistinct, nil
	case string(DispositionMergedActive), "didn't_quit", "didn't quit":
		return DispositionMergedActive, nil
	case string(DispositionMergedClosed), "single_start-end":
		return DispositionMergedClosed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDisposition, label)
	}
}

// Guide maps a normalized customer name to the curated disposition for that
// customer's identity group. Names rather than group ids key the guide so
// entries survive re-grouping when the input file changes between runs.
type Guide map[string]Disposition

// ForGroup finds the disposition for a group by matching any member's
// normalized name against the guide.
func (g Guide) ForGroup(group identity.Group) (Disposition, bool) {
	for _, member := range group.Members {
		if d, ok := g[subscription.Normalize(member.Name)]; ok {
			return d, true
		}
	}
	return "", false
}
