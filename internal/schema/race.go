package schema

import (
	"fmt"

	"github.com/hkracing/racesync/errs"
)

// MaxRacesPerDay bounds valid race numbers on a single race day.
const MaxRacesPerDay = 14

// RaceID is the canonical logical identity of a single race.
type RaceID struct {
	Date   Date
	Venue  Venue
	RaceNo int
}

// Validate checks the race identity against domain bounds.
func (r RaceID) Validate() error {
	if r.Date.IsZero() {
		return errs.New("schema/race", errs.CodeInvalid, errs.WithMessage("race date required"))
	}
	if r.Venue != VenueShaTin && r.Venue != VenueHappyValley {
		return errs.New("schema/race", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown venue %q", r.Venue)))
	}
	if r.RaceNo < 1 || r.RaceNo > MaxRacesPerDay {
		return errs.New("schema/race", errs.CodeMalformedRecord,
			errs.WithMessage(fmt.Sprintf("race number %d outside 1..%d", r.RaceNo, MaxRacesPerDay)),
			errs.WithRaceKey(r.DateVenue()))
	}
	return nil
}

// String renders the composite race identifier, e.g. 2025-07-01_ST_R3.
func (r RaceID) String() string {
	return fmt.Sprintf("%s_%s_R%d", r.Date, r.Venue, r.RaceNo)
}

// DateVenue renders the date-venue prefix shared by all races of one day.
func (r RaceID) DateVenue() string {
	return fmt.Sprintf("%s_%s", r.Date, r.Venue)
}
