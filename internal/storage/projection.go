package storage

import (
	"sort"
	"strings"

	"github.com/fagemx/edda/internal/types"
)

// BuildDecisionRows derives the decision projection from an event stream.
// The projection is a pure function of the stream: replaying all events
// into an empty store yields identical (is_active, superseded_by) state.
// At most one row per (branch, key) is active — the most recent one.
func BuildDecisionRows(events []types.Event) []types.DecisionRow {
	var rows []types.DecisionRow
	// (branch, key) -> index of the currently active row.
	active := map[[2]string]int{}

	for _, e := range events {
		d, ok := types.DecisionOf(&e)
		if !ok {
			continue
		}
		row := types.DecisionRow{
			Key:      d.Key,
			Branch:   e.Branch,
			EventID:  e.EventID,
			Value:    d.Value,
			Reason:   d.Reason,
			TS:       e.TS,
			IsActive: true,
			Domain:   types.DomainOf(d.Key),
		}
		k := [2]string{e.Branch, d.Key}
		if prev, ok := active[k]; ok {
			rows[prev].IsActive = false
			rows[prev].SupersededBy = e.EventID
		}
		rows = append(rows, row)
		active[k] = len(rows) - 1
	}
	return rows
}

// FilterActive returns active rows matching the optional filters: exact
// domain match and case-insensitive keyword over key, value, and reason.
func FilterActive(rows []types.DecisionRow, domain, keyword string) []types.DecisionRow {
	kw := strings.ToLower(keyword)
	var out []types.DecisionRow
	for _, r := range rows {
		if !r.IsActive {
			continue
		}
		if domain != "" && r.Domain != domain {
			continue
		}
		if kw != "" && !matchesKeyword(r, kw) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesKeyword(r types.DecisionRow, kw string) bool {
	return strings.Contains(strings.ToLower(r.Key), kw) ||
		strings.Contains(strings.ToLower(r.Value), kw) ||
		strings.Contains(strings.ToLower(r.Reason), kw)
}

// TimelineByKey returns all rows for a key, newest first.
func TimelineByKey(rows []types.DecisionRow, key string) []types.DecisionRow {
	var out []types.DecisionRow
	for _, r := range rows {
		if r.Key == key {
			out = append(out, r)
		}
	}
	reverseRows(out)
	return out
}

// TimelineByDomain returns all rows in a domain, newest first.
func TimelineByDomain(rows []types.DecisionRow, domain string) []types.DecisionRow {
	var out []types.DecisionRow
	for _, r := range rows {
		if r.Domain == domain {
			out = append(out, r)
		}
	}
	reverseRows(out)
	return out
}

// Domains returns the sorted distinct domains present in rows.
func Domains(rows []types.DecisionRow) []string {
	set := map[string]bool{}
	for _, r := range rows {
		set[r.Domain] = true
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func reverseRows(rows []types.DecisionRow) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
