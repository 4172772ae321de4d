// Package postgres implements the record sink on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

// Store persists record documents in a single race_records table keyed by
// (collection, key), with the envelope held as jsonb.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store backed by the provided pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against the DSN and pings it once.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.New("sink.postgres", errs.CodeFatalSink,
			errs.WithMessage("open pool"), errs.WithCause(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New("sink.postgres", errs.CodeFatalSink,
			errs.WithMessage("ping"), errs.WithCause(err))
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var _ sink.Sink = (*Store)(nil)

const (
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	upsertSQL = `
INSERT INTO race_records (id, collection, key, fields, extracted_at)
VALUES ($1, $2, $3, $4::jsonb, $5::timestamptz)
ON CONFLICT (collection, key) DO UPDATE SET
    fields = EXCLUDED.fields,
    extracted_at = EXCLUDED.extracted_at,
    updated_at = NOW()
RETURNING (xmax = 0) AS inserted;
`
	getSQL = `
SELECT id, key, fields FROM race_records
WHERE collection = $1 AND key = $2;
`
	listSQL = `
SELECT id, key, fields FROM race_records
WHERE collection = $1
  AND ($2 = '' OR fields->>'race_date' = $2)
  AND ($3 = '' OR fields->>'racecourse' = $3)
ORDER BY key, id;
`
	deleteSQL = `DELETE FROM race_records WHERE collection = $1 AND id = $2;`
)

func (s *Store) Upsert(ctx context.Context, collection, key string, fields map[string]any) (schema.ResultKind, error) {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", errs.New("sink.postgres", errs.CodeInvalid,
			errs.WithMessage("marshal fields"), errs.WithCause(err))
	}
	extractedAt, _ := fields[sink.FieldExtractedAt].(string)

	var inserted bool
	row := s.pool.QueryRow(ctx, upsertSQL, uuid.NewString(), collection, key, encoded, extractedAt)
	if err := row.Scan(&inserted); err != nil {
		return "", mapError("upsert", collection, key, err)
	}
	if inserted {
		return schema.ResultCreated, nil
	}
	return schema.ResultUpdated, nil
}

func (s *Store) Get(ctx context.Context, collection, key string) (sink.StoredRecord, error) {
	var (
		id      string
		gotKey  string
		encoded []byte
	)
	row := s.pool.QueryRow(ctx, getSQL, collection, key)
	if err := row.Scan(&id, &gotKey, &encoded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sink.StoredRecord{}, errs.New("sink.postgres", errs.CodeNotFound,
				errs.WithCollection(collection), errs.WithRaceKey(key))
		}
		return sink.StoredRecord{}, mapError("get", collection, key, err)
	}
	return decodeStored(id, gotKey, encoded)
}

func (s *Store) List(ctx context.Context, collection string, filter sink.Filter) ([]sink.StoredRecord, error) {
	rows, err := s.pool.Query(ctx, listSQL, collection, filter.RaceDate, filter.Venue)
	if err != nil {
		return nil, mapError("list", collection, "", err)
	}
	defer rows.Close()

	var out []sink.StoredRecord
	for rows.Next() {
		var (
			id      string
			key     string
			encoded []byte
		)
		if err := rows.Scan(&id, &key, &encoded); err != nil {
			return nil, mapError("list", collection, "", err)
		}
		stored, err := decodeStored(id, key, encoded)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list", collection, "", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx, deleteSQL, collection, id)
	if err != nil {
		return mapError("delete", collection, "", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New("sink.postgres", errs.CodeNotFound, errs.WithCollection(collection))
	}
	return nil
}

func decodeStored(id, key string, encoded []byte) (sink.StoredRecord, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return sink.StoredRecord{}, errs.New("sink.postgres", errs.CodeInvalid,
			errs.WithMessage("decode stored fields"), errs.WithCause(err))
	}
	return sink.StoredRecord{ID: id, Key: key, Fields: fields}, nil
}

// mapError classifies driver failures. Connection-level faults retry;
// constraint and syntax faults do not.
func mapError(op, collection, key string, err error) error {
	opts := []errs.Option{errs.WithMessage(op), errs.WithCause(err)}
	if collection != "" {
		opts = append(opts, errs.WithCollection(collection))
	}
	if key != "" {
		opts = append(opts, errs.WithRaceKey(key))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 is connection exception, 53 insufficient resources, 57 operator intervention
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			return errs.New("sink.postgres", errs.CodeTransient, opts...)
		default:
			return errs.New("sink.postgres", errs.CodeFatalSink, opts...)
		}
	}
	return errs.New("sink.postgres", errs.CodeTransient, opts...)
}
