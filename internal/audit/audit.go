// Package audit sweeps destination collections for duplicate records that
// share one logical identity key and removes all but the freshest copy.
package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/hkracing/racesync/internal/observability"
	"github.com/hkracing/racesync/internal/route"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

// Auditor inspects stored records and deletes duplicates. Keys are always
// recomputed from identity fields; the stored key field is advisory only.
type Auditor struct {
	store sink.Sink
}

// New constructs an Auditor over the given sink.
func New(store sink.Sink) *Auditor {
	return &Auditor{store: store}
}

// Report summarizes one collection's sweep.
type Report struct {
	Collection      string
	Examined        int
	DuplicateGroups int
	Removed         int
	// Miskeyed counts rows whose stored key field disagrees with the key
	// recomputed from identity fields.
	Miskeyed int
	// Unkeyed counts rows whose identity fields cannot produce a key.
	// They are left in place; deleting on bad data loses records.
	Unkeyed int
}

// Sweep deduplicates one collection. Within a duplicate group the survivor is
// the row with the newest extraction timestamp, ties broken by the greatest
// record ID so repeated sweeps always pick the same survivor.
func (a *Auditor) Sweep(ctx context.Context, collection string) (Report, error) {
	report := Report{Collection: collection}

	keyFn, err := route.KeyFunc(collection)
	if err != nil {
		return report, err
	}
	rows, err := a.store.List(ctx, collection, sink.Filter{})
	if err != nil {
		return report, err
	}
	report.Examined = len(rows)

	groups := make(map[string][]sink.StoredRecord)
	for _, row := range rows {
		key, err := keyFn(row.Fields)
		if err != nil {
			report.Unkeyed++
			observability.Log().Error("stored record has no recomputable key",
				observability.Field{Key: "collection", Value: collection},
				observability.Field{Key: "id", Value: row.ID},
				observability.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		if row.Key != "" && row.Key != key {
			report.Miskeyed++
		}
		groups[key] = append(groups[key], row)
	}

	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		report.DuplicateGroups++
		sort.Slice(group, func(i, j int) bool {
			ti, tj := group[i].ExtractedAt(), group[j].ExtractedAt()
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return group[i].ID > group[j].ID
		})
		for _, doomed := range group[1:] {
			if err := a.store.Delete(ctx, collection, doomed.ID); err != nil {
				return report, err
			}
			report.Removed++
		}
		observability.Log().Info("removed duplicate records",
			observability.Field{Key: "collection", Value: collection},
			observability.Field{Key: "key", Value: key},
			observability.Field{Key: "removed", Value: len(group) - 1},
		)
	}
	return report, nil
}

// VenueReport summarizes venue-conflicted rows found under one catalog date.
type VenueReport struct {
	Date       string
	Venue      string
	Conflicted int
	Removed    int
}

// SweepVenues finds records stored for a catalog date whose racecourse field
// disagrees with the venue the catalog assigns that date. Only one venue runs
// per calendar day, so such rows are always misassigned. Conflicted rows are
// reported and deleted only when remove is set.
func (a *Auditor) SweepVenues(ctx context.Context, dates []schema.RaceDate, remove bool) ([]VenueReport, error) {
	reports := make([]VenueReport, 0, len(dates))
	for _, day := range dates {
		report := VenueReport{Date: day.Date.String(), Venue: string(day.Venue)}
		for _, collection := range route.Collections() {
			rows, err := a.store.List(ctx, collection, sink.Filter{RaceDate: day.Date.String()})
			if err != nil {
				return reports, err
			}
			for _, row := range rows {
				venue, _ := row.Fields[sink.FieldVenue].(string)
				if venue == string(day.Venue) {
					continue
				}
				report.Conflicted++
				observability.Log().Info("record venue conflicts with catalog",
					observability.Field{Key: "collection", Value: collection},
					observability.Field{Key: "id", Value: row.ID},
					observability.Field{Key: "date", Value: day.Date.String()},
					observability.Field{Key: "stored_venue", Value: venue},
					observability.Field{Key: "catalog_venue", Value: string(day.Venue)},
				)
				if !remove {
					continue
				}
				if err := a.store.Delete(ctx, collection, row.ID); err != nil {
					return reports, err
				}
				report.Removed++
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SweepAll runs Sweep across every destination collection and returns the
// per-collection reports in routing order. One failing collection does not
// stop the remaining sweeps; failures come back aggregated.
func (a *Auditor) SweepAll(ctx context.Context) ([]Report, error) {
	reports := make([]Report, 0, len(route.Collections()))
	var sweepErrs []error
	for _, collection := range route.Collections() {
		report, err := a.Sweep(ctx, collection)
		if err != nil {
			sweepErrs = append(sweepErrs, fmt.Errorf("%s: %w", collection, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, observability.AggregateErrors("audit sweep", sweepErrs)
}
