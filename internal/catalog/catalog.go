// Package catalog maintains the set of known race dates and their classification.
package catalog

import (
	"fmt"
	"io"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
)

// DateEntry is one raw calendar entry prior to classification.
type DateEntry struct {
	Date       schema.Date
	Venue      schema.Venue
	TotalRaces int
}

// Classify validates the entry set and stamps each date with its temporal
// status relative to the reference date. The result is ordered newest first
// and deterministic for a fixed input. Two venues claiming the same calendar
// date is a validation error; it is surfaced, never resolved.
func Classify(entries []DateEntry, reference schema.Date) ([]schema.RaceDate, error) {
	seen := make(map[schema.Date]schema.Venue, len(entries))
	out := make([]schema.RaceDate, 0, len(entries))
	for _, entry := range entries {
		if entry.Date.IsZero() {
			return nil, errs.New("catalog/classify", errs.CodeInvalid,
				errs.WithMessage("entry with zero date"))
		}
		if prior, ok := seen[entry.Date]; ok {
			if prior != entry.Venue {
				return nil, errs.New("catalog/classify", errs.CodeValidation,
					errs.WithMessage(fmt.Sprintf("date %s claimed by venues %s and %s",
						entry.Date, prior, entry.Venue)))
			}
			continue
		}
		seen[entry.Date] = entry.Venue
		out = append(out, schema.RaceDate{
			Date:       entry.Date,
			Venue:      entry.Venue,
			Status:     schema.StatusOf(entry.Date, reference),
			TotalRaces: entry.TotalRaces,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// fileEntry mirrors one element of a race_dates.json document.
type fileEntry struct {
	RaceDate   string `json:"race_date"`
	Racecourse string `json:"racecourse"`
	Venue      string `json:"venue"`
	TotalRaces int    `json:"total_races"`
}

// LoadDates decodes a race-dates JSON document: either a list of entry
// objects or a plain list of date strings (venue defaults to Sha Tin when the
// document omits it, matching the upstream export).
func LoadDates(r io.Reader) ([]DateEntry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dates document: %w", err)
	}

	var entries []fileEntry
	if err := json.Unmarshal(raw, &entries); err == nil && len(entries) > 0 && entries[0].RaceDate != "" {
		return convertEntries(entries)
	}

	var plain []string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, errs.New("catalog/load", errs.CodeInvalid,
			errs.WithMessage("unrecognized race dates document"), errs.WithCause(err))
	}
	converted := make([]fileEntry, 0, len(plain))
	for _, date := range plain {
		converted = append(converted, fileEntry{RaceDate: date, Racecourse: string(schema.VenueShaTin)})
	}
	return convertEntries(converted)
}

// LoadDatesFile reads and decodes the race-dates document at path.
func LoadDatesFile(path string) ([]DateEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dates document: %w", err)
	}
	defer f.Close()
	return LoadDates(f)
}

func convertEntries(entries []fileEntry) ([]DateEntry, error) {
	out := make([]DateEntry, 0, len(entries))
	for _, entry := range entries {
		date, err := schema.ParseDate(entry.RaceDate)
		if err != nil {
			return nil, err
		}
		venueRaw := entry.Racecourse
		if venueRaw == "" {
			venueRaw = entry.Venue
		}
		venue, err := schema.ParseVenue(venueRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, DateEntry{Date: date, Venue: venue, TotalRaces: entry.TotalRaces})
	}
	return out, nil
}
