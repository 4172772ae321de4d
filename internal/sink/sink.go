// Package sink defines the storage contract shared by every backend.
package sink

import (
	"context"
	"time"

	"github.com/hkracing/racesync/internal/schema"
)

// Field names of the stored document envelope. Every backend stores the same
// flat identity fields so logical keys can be recomputed from a bare record.
const (
	FieldKey           = "key"
	FieldKind          = "kind"
	FieldRaceDate      = "race_date"
	FieldVenue         = "racecourse"
	FieldRaceNumber    = "race_number"
	FieldDiscriminator = "discriminator"
	FieldExtractedAt   = "extracted_at"
	FieldData          = "data"
)

// StoredRecord is one persisted document. ID is the backend's own record
// identifier and is the only handle deletes accept; Key is the logical
// identity key the document was written under.
type StoredRecord struct {
	ID     string
	Key    string
	Fields map[string]any
}

// ExtractedAt reads the extraction timestamp out of a stored document.
// Documents missing the field sort as the zero time, i.e. oldest.
func (r StoredRecord) ExtractedAt() time.Time {
	raw, _ := r.Fields[FieldExtractedAt].(string)
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Filter narrows a List call. Zero-value fields match everything.
type Filter struct {
	RaceDate string
	Venue    string
}

func (f Filter) matches(fields map[string]any) bool {
	if f.RaceDate != "" {
		if v, _ := fields[FieldRaceDate].(string); v != f.RaceDate {
			return false
		}
	}
	if f.Venue != "" {
		if v, _ := fields[FieldVenue].(string); v != f.Venue {
			return false
		}
	}
	return true
}

// Sink is the write side of a record store. Upsert is keyed by the logical
// identity key and reports whether the document was created or updated;
// Delete is keyed by the backend record ID so duplicate sweeps can remove a
// specific physical row.
type Sink interface {
	Upsert(ctx context.Context, collection, key string, fields map[string]any) (schema.ResultKind, error)
	Get(ctx context.Context, collection, key string) (StoredRecord, error)
	List(ctx context.Context, collection string, filter Filter) ([]StoredRecord, error)
	Delete(ctx context.Context, collection, id string) error
}

// Document builds the envelope persisted for a record: identity fields at the
// top level, the typed payload under FieldData.
func Document(record schema.Record, key string) map[string]any {
	return map[string]any{
		FieldKey:           key,
		FieldKind:          string(record.Kind),
		FieldRaceDate:      record.Race.Date.String(),
		FieldVenue:         string(record.Race.Venue),
		FieldRaceNumber:    record.Race.RaceNo,
		FieldDiscriminator: record.Discriminator,
		FieldExtractedAt:   record.ExtractedAt.UTC().Format(time.RFC3339),
		FieldData:          record.Payload,
	}
}
