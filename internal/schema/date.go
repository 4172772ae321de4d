// Package schema defines the canonical racing domain types shared across the pipeline.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/hkracing/racesync/errs"
)

// Venue identifies one of the two racecourses.
type Venue string

const (
	// VenueShaTin is the Sha Tin racecourse.
	VenueShaTin Venue = "ST"
	// VenueHappyValley is the Happy Valley racecourse.
	VenueHappyValley Venue = "HV"
)

// ParseVenue normalizes a venue string into a canonical Venue.
func ParseVenue(raw string) (Venue, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ST", "SHA TIN", "沙田":
		return VenueShaTin, nil
	case "HV", "HAPPY VALLEY", "跑馬地":
		return VenueHappyValley, nil
	default:
		return "", errs.New("schema/venue", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown venue %q", raw)))
	}
}

// Name returns the human-readable racecourse name.
func (v Venue) Name() string {
	switch v {
	case VenueShaTin:
		return "Sha Tin"
	case VenueHappyValley:
		return "Happy Valley"
	default:
		return string(v)
	}
}

// Status classifies a race date relative to the processing date.
type Status string

const (
	// StatusCompleted marks dates strictly before the processing date.
	StatusCompleted Status = "completed"
	// StatusToday marks the processing date itself.
	StatusToday Status = "today"
	// StatusUpcoming marks dates strictly after the processing date.
	StatusUpcoming Status = "upcoming"
)

// ParseStatus normalizes a status string.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusToday):
		return StatusToday, nil
	case string(StatusUpcoming):
		return StatusUpcoming, nil
	default:
		return "", errs.New("schema/status", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown status %q", raw)))
	}
}

// Date is a civil calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return Date{}, errs.New("schema/date", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("invalid date %q", raw)), errs.WithCause(err))
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf truncates a time.Time to its civil date.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Compare returns -1, 0, or 1 ordering d against other chronologically.
func (d Date) Compare(other Date) int {
	if d.Year != other.Year {
		return sign(d.Year - other.Year)
	}
	if d.Month != other.Month {
		return sign(int(d.Month) - int(other.Month))
	}
	return sign(d.Day - other.Day)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// StatusOf classifies date against the reference processing date.
func StatusOf(date, reference Date) Status {
	switch {
	case date.Before(reference):
		return StatusCompleted
	case date.After(reference):
		return StatusUpcoming
	default:
		return StatusToday
	}
}

// RaceDate couples a calendar date with its venue and temporal status.
// At most one venue runs per calendar date.
type RaceDate struct {
	Date       Date
	Venue      Venue
	Status     Status
	TotalRaces int
}
