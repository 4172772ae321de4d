// Package route maps record variants onto destination collections and identity keys.
package route

import (
	"fmt"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
)

// Destination collection names.
const (
	CollectionPerformance         = "race_performance"
	CollectionPerformanceAnalysis = "race_performance_analysis"
	CollectionHorsePerformance    = "race_horse_performance"
	CollectionIncidents           = "race_incidents"
	CollectionIncidentAnalysis    = "race_incident_analysis"
	CollectionPayouts             = "race_payouts"
	CollectionPayoutPools         = "race_payout_pools"
	CollectionPayoutAnalysis      = "race_payout_analysis"
)

// KeyStrategy names the identity-key shape a collection uses.
type KeyStrategy string

const (
	// DateVenueKey keys a collection by calendar date and venue alone.
	DateVenueKey KeyStrategy = "date_venue"
	// CompositeRaceKey keys a collection by the full race identity plus a
	// per-kind discriminator (horse number, incident sequence, pool type).
	CompositeRaceKey KeyStrategy = "composite_race"
)

// Destination pairs a collection name with the rendered identity key.
type Destination struct {
	Collection string
	Key        string
}

// binding fixes the collection and key strategy for one record kind.
type binding struct {
	collection string
	strategy   KeyStrategy
}

// bindings is the routing table. This is the only place in the system that
// knows which collections use which key shape.
var bindings = map[schema.RecordKind]binding{
	schema.KindPerformance:         {CollectionPerformance, DateVenueKey},
	schema.KindPerformanceAnalysis: {CollectionPerformanceAnalysis, DateVenueKey},
	schema.KindHorsePerformance:    {CollectionHorsePerformance, CompositeRaceKey},
	schema.KindIncident:            {CollectionIncidents, CompositeRaceKey},
	schema.KindIncidentAnalysis:    {CollectionIncidentAnalysis, DateVenueKey},
	schema.KindPayoutSummary:       {CollectionPayouts, DateVenueKey},
	schema.KindPayoutPool:          {CollectionPayoutPools, CompositeRaceKey},
	schema.KindPayoutAnalysis:      {CollectionPayoutAnalysis, DateVenueKey},
}

// Route resolves the destination collection and identity key for a record.
// Unknown kinds are an error, never a silent default route.
func Route(record schema.Record) (Destination, error) {
	bound, ok := bindings[record.Kind]
	if !ok {
		return Destination{}, errs.New("route", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unroutable record kind %q", record.Kind)))
	}
	key, err := renderKey(bound.strategy, record.Race, record.Discriminator)
	if err != nil {
		return Destination{}, err
	}
	return Destination{Collection: bound.collection, Key: key}, nil
}

func renderKey(strategy KeyStrategy, race schema.RaceID, discriminator string) (string, error) {
	switch strategy {
	case DateVenueKey:
		return race.DateVenue(), nil
	case CompositeRaceKey:
		if discriminator == "" {
			return "", errs.New("route", errs.CodeInvalid,
				errs.WithMessage("composite key requires a discriminator"),
				errs.WithRaceKey(race.String()))
		}
		return fmt.Sprintf("%s_%s", race.String(), discriminator), nil
	default:
		return "", errs.New("route", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown key strategy %q", strategy)))
	}
}

// Collections lists every destination collection in routing order.
func Collections() []string {
	out := make([]string, 0, len(bindings))
	for _, kind := range schema.Kinds() {
		out = append(out, bindings[kind].collection)
	}
	return out
}

// StrategyFor reports the key strategy of a collection.
func StrategyFor(collection string) (KeyStrategy, error) {
	for _, bound := range bindings {
		if bound.collection == collection {
			return bound.strategy, nil
		}
	}
	return "", errs.New("route", errs.CodeInvalid,
		errs.WithMessage(fmt.Sprintf("unknown collection %q", collection)))
}

// KeyFunc returns a function that recomputes a stored record's logical key
// from its identity fields, using the collection's key strategy. Stored key
// fields are deliberately ignored; a prior bug may have written them wrong.
func KeyFunc(collection string) (func(fields map[string]any) (string, error), error) {
	strategy, err := StrategyFor(collection)
	if err != nil {
		return nil, err
	}
	return func(fields map[string]any) (string, error) {
		race, err := identityFromFields(fields)
		if err != nil {
			return "", err
		}
		disc, _ := fields["discriminator"].(string)
		return renderKey(strategy, race, disc)
	}, nil
}

func identityFromFields(fields map[string]any) (schema.RaceID, error) {
	rawDate, _ := fields["race_date"].(string)
	date, err := schema.ParseDate(rawDate)
	if err != nil {
		return schema.RaceID{}, err
	}
	rawVenue, _ := fields["racecourse"].(string)
	venue, err := schema.ParseVenue(rawVenue)
	if err != nil {
		return schema.RaceID{}, err
	}
	raceNo := 0
	switch v := fields["race_number"].(type) {
	case int:
		raceNo = v
	case float64:
		raceNo = int(v)
	}
	return schema.RaceID{Date: date, Venue: venue, RaceNo: raceNo}, nil
}
