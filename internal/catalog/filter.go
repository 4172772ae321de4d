package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
)

// FilterOptions narrows a classified date sequence. Zero values disable the
// corresponding predicate.
type FilterOptions struct {
	Status schema.Status
	Month  string // YYYY/MM
	Limit  int
}

// Filter applies status, month, and limit predicates in that order, so the
// limit always truncates the already-filtered sequence to its first N entries.
func Filter(dates []schema.RaceDate, opts FilterOptions) ([]schema.RaceDate, error) {
	out := dates
	if opts.Status != "" {
		filtered := make([]schema.RaceDate, 0, len(out))
		for _, d := range out {
			if d.Status == opts.Status {
				filtered = append(filtered, d)
			}
		}
		out = filtered
	}
	if opts.Month != "" {
		year, month, err := parseMonth(opts.Month)
		if err != nil {
			return nil, err
		}
		filtered := make([]schema.RaceDate, 0, len(out))
		for _, d := range out {
			if d.Date.Year == year && int(d.Date.Month) == month {
				filtered = append(filtered, d)
			}
		}
		out = filtered
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func parseMonth(raw string) (year, month int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 {
		return 0, 0, errs.New("catalog/filter", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("month must be YYYY/MM, got %q", raw)))
	}
	year, yerr := strconv.Atoi(parts[0])
	month, merr := strconv.Atoi(parts[1])
	if yerr != nil || merr != nil || month < 1 || month > 12 {
		return 0, 0, errs.New("catalog/filter", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("month must be YYYY/MM, got %q", raw)))
	}
	return year, month, nil
}
