// Package verify cross-checks stored record counts against what a set of
// race dates should have produced. It only ever reads the sink.
package verify

import (
	"context"
	"fmt"

	"github.com/hkracing/racesync/internal/observability"
	"github.com/hkracing/racesync/internal/route"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

// Reporter compares sink contents with the date catalog's expectations.
type Reporter struct {
	store sink.Sink
}

// New constructs a Reporter over the given sink.
func New(store sink.Sink) *Reporter {
	return &Reporter{store: store}
}

// Finding is the verdict for one collection on one race day.
type Finding struct {
	Collection string
	// Expected is the statically known record count, or -1 for collections
	// whose cardinality depends on runners, incidents, or pools offered.
	Expected int
	Actual   int
	// Missing lists the absent identities: the date-venue key for scalar
	// collections, race labels (R1..Rn) for composite ones.
	Missing []string
	// Excess counts physical rows beyond the distinct logical keys, i.e.
	// duplicates the auditor has not yet caught.
	Excess int
}

// Ok reports whether the finding shows a complete, duplicate-free collection.
func (f Finding) Ok() bool {
	return len(f.Missing) == 0 && f.Excess == 0
}

// DayReport is the verification result for one race day.
type DayReport struct {
	Date       schema.Date
	Venue      schema.Venue
	TotalRaces int
	Findings   []Finding
	// VenueConflict is set when the sink holds records for this date under
	// a different venue than the catalog assigns.
	VenueConflict bool
}

// Clean reports whether the day verified without anomalies.
func (r DayReport) Clean() bool {
	if r.VenueConflict {
		return false
	}
	for _, finding := range r.Findings {
		if !finding.Ok() {
			return false
		}
	}
	return true
}

// Verify checks every date against every destination collection. Dates are
// reported in input order; nothing is written.
func (v *Reporter) Verify(ctx context.Context, dates []schema.RaceDate) ([]DayReport, error) {
	reports := make([]DayReport, 0, len(dates))
	for _, day := range dates {
		report, err := v.verifyDay(ctx, day)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (v *Reporter) verifyDay(ctx context.Context, day schema.RaceDate) (DayReport, error) {
	report := DayReport{Date: day.Date, Venue: day.Venue, TotalRaces: day.TotalRaces}

	for _, collection := range route.Collections() {
		// list by date alone so rows under the wrong venue are visible
		rows, err := v.store.List(ctx, collection, sink.Filter{RaceDate: day.Date.String()})
		if err != nil {
			return report, err
		}
		var mine []sink.StoredRecord
		for _, row := range rows {
			venue, _ := row.Fields[sink.FieldVenue].(string)
			if venue != string(day.Venue) {
				report.VenueConflict = true
				continue
			}
			mine = append(mine, row)
		}

		strategy, err := route.StrategyFor(collection)
		if err != nil {
			return report, err
		}
		finding := Finding{Collection: collection, Actual: len(mine)}
		switch strategy {
		case route.DateVenueKey:
			finding.Expected = 1
			if len(mine) == 0 {
				finding.Missing = []string{day.Date.String() + "_" + string(day.Venue)}
			}
			if len(mine) > 1 {
				finding.Excess = len(mine) - 1
			}
		case route.CompositeRaceKey:
			finding.Expected = -1
			// a clean race legitimately has no incident rows
			if collection != route.CollectionIncidents {
				finding.Missing = missingRaces(mine, day.TotalRaces)
			}
			finding.Excess = len(mine) - distinctKeys(collection, mine)
		}
		report.Findings = append(report.Findings, finding)
	}

	if !report.Clean() {
		observability.Log().Info("verification anomalies found",
			observability.Field{Key: "date", Value: day.Date.String()},
			observability.Field{Key: "venue", Value: string(day.Venue)},
			observability.Field{Key: "venue_conflict", Value: report.VenueConflict},
		)
	}
	return report, nil
}

// missingRaces returns labels for races with zero stored rows.
func missingRaces(rows []sink.StoredRecord, totalRaces int) []string {
	covered := make(map[int]bool)
	for _, row := range rows {
		switch v := row.Fields[sink.FieldRaceNumber].(type) {
		case int:
			covered[v] = true
		case float64:
			covered[int(v)] = true
		}
	}
	var missing []string
	for raceNo := 1; raceNo <= totalRaces; raceNo++ {
		if !covered[raceNo] {
			missing = append(missing, fmt.Sprintf("R%d", raceNo))
		}
	}
	return missing
}

// distinctKeys counts logical identities by recomputing each row's key from
// its identity fields, the same way the auditor does; stored key fields are
// only a fallback for rows that cannot be keyed.
func distinctKeys(collection string, rows []sink.StoredRecord) int {
	keyFn, err := route.KeyFunc(collection)
	if err != nil {
		keyFn = nil
	}
	seen := make(map[string]bool)
	for _, row := range rows {
		var key string
		if keyFn != nil {
			if recomputed, kerr := keyFn(row.Fields); kerr == nil {
				key = recomputed
			}
		}
		if key == "" {
			key, _ = row.Fields[sink.FieldKey].(string)
		}
		if key == "" {
			key = row.Key
		}
		if key == "" {
			key = row.ID
		}
		seen[key] = true
	}
	return len(seen)
}
