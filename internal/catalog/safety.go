package catalog

import "github.com/hkracing/racesync/internal/schema"

// FilterFinal enforces the finality invariant: dates whose races have not yet
// run never pass downstream unless the caller explicitly opts in. Completed
// and today entries pass through in their original order; the filter is a
// pure predicate with no side effects.
func FilterFinal(dates []schema.RaceDate, allowUpcoming bool) []schema.RaceDate {
	if allowUpcoming {
		out := make([]schema.RaceDate, len(dates))
		copy(out, dates)
		return out
	}
	out := make([]schema.RaceDate, 0, len(dates))
	for _, d := range dates {
		if d.Status == schema.StatusUpcoming {
			continue
		}
		out = append(out, d)
	}
	return out
}
