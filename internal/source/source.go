// Package source defines the upstream raw record contract and its HTTP implementation.
package source

import (
	"context"

	"github.com/hkracing/racesync/internal/schema"
)

// RawPayload is a pre-normalized structured record produced by the upstream.
type RawPayload map[string]any

// RawRace couples one race's raw payload with its declared race number.
type RawRace struct {
	RaceNo int
	Fields RawPayload
}

// DayPayload carries every raw race payload extracted for one race day.
type DayPayload struct {
	Date  schema.Date
	Venue schema.Venue
	Races []RawRace
}

// RawRecordSource yields raw per-race payloads for a race day. Missing days
// return a not_found error; days aged out of the upstream retention window
// return an unavailable error, which is a non-retryable skip.
type RawRecordSource interface {
	Fetch(ctx context.Context, date schema.Date, venue schema.Venue) (DayPayload, error)
}
