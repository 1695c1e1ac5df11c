package search

import (
	"strings"
)

// SplitQuery splits a space-separated query string into terms.
func SplitQuery(query string) []string {
	return strings.Fields(query)
}

// cleanTerms trims terms and drops blank ones, keeping order.
func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// uniqueIDs drops repeated ids, keeping first occurrences.
func uniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinTerms(terms []string) string {
	return strings.Join(terms, " ")
}
