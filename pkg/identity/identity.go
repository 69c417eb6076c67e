// Package identity clusters subscription records that belong to the same
// underlying customer. Two records are adjacent when they share a normalized
// email OR a normalized name; connected components of that graph form
// identity groups. The rule is deliberately high-recall, which is why group
// collapse decisions are delegated to a human-curated disposition guide
// (see package dedup) instead of being applied automatically.
package identity

import (
	"slices"

	"github.com/lessonloop/churnkit/pkg/subscription"
)

// Group is one connected component of the identity graph. IDs are assigned
// sequentially in discovery order, so for a fixed input order both group ids
// and membership are stable across runs. The curated disposition guide
// depends on that stability.
type Group struct {
	ID      int
	Members []subscription.Record
}

// Size returns the number of member records.
func (g Group) Size() int { return len(g.Members) }

// IsDuplicate reports whether the group holds more than one record and
// therefore needs a disposition to resolve.
func (g Group) IsDuplicate() bool { return len(g.Members) > 1 }

// BuildGroups partitions records into identity groups.
//
// Records with an empty normalized email (or name) are not linked through
// that field: an absent value is no evidence of shared identity. A total
// function: empty input yields no groups.
func BuildGroups(records []subscription.Record) []Group {
	n := len(records)
	if n == 0 {
		return nil
	}

	emailRows := make(map[string][]int, n)
	nameRows := make(map[string][]int, n)
	emails := make([]string, n)
	names := make([]string, n)
	for i, r := range records {
		emails[i] = subscription.Normalize(r.Email)
		names[i] = subscription.Normalize(r.Name)
		if emails[i] != "" {
			emailRows[emails[i]] = append(emailRows[emails[i]], i)
		}
		if names[i] != "" {
			nameRows[names[i]] = append(nameRows[names[i]], i)
		}
	}

	visited := make([]bool, n)
	var groups []Group

	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}

		var component []int
		stack := []int{start}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			component = append(component, cur)

			for _, next := range emailRows[emails[cur]] {
				if !visited[next] {
					stack = append(stack, next)
				}
			}
			for _, next := range nameRows[names[cur]] {
				if !visited[next] {
					stack = append(stack, next)
				}
			}
		}

		// Keep members in input order regardless of traversal order so the
		// first member (the guide's anchor row) is reproducible.
		slices.Sort(component)
		members := make([]subscription.Record, len(component))
		for i, idx := range component {
			members[i] = records[idx].Clone()
		}
		groups = append(groups, Group{ID: len(groups), Members: members})
	}

	return groups
}

// Records flattens groups back into a single record slice in group order.
func Records(groups []Group) []subscription.Record {
	var out []subscription.Record
	for _, g := range groups {
		out = append(out, subscription.CloneRecords(g.Members)...)
	}
	return out
}
