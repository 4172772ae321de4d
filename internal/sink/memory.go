package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
)

// Memory is an in-process sink used by tests and dry runs. It keeps the same
// created/updated semantics as the remote backends and can be seeded with
// duplicate physical rows to exercise the duplicate sweep.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]memoryRow
}

type memoryRow struct {
	id     string
	key    string
	fields map[string]any
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]memoryRow)}
}

func (m *Memory) Upsert(_ context.Context, collection, key string, fields map[string]any) (schema.ResultKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.collections[collection]
	for i, row := range rows {
		if row.key == key {
			rows[i].fields = cloneFields(fields)
			return schema.ResultUpdated, nil
		}
	}
	m.collections[collection] = append(rows, memoryRow{
		id:     uuid.NewString(),
		key:    key,
		fields: cloneFields(fields),
	})
	return schema.ResultCreated, nil
}

func (m *Memory) Get(_ context.Context, collection, key string) (StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.collections[collection] {
		if row.key == key {
			return row.stored(), nil
		}
	}
	return StoredRecord{}, errs.New("sink.memory", errs.CodeNotFound,
		errs.WithCollection(collection), errs.WithRaceKey(key))
}

func (m *Memory) List(_ context.Context, collection string, filter Filter) ([]StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredRecord
	for _, row := range m.collections[collection] {
		if filter.matches(row.fields) {
			out = append(out, row.stored())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.collections[collection]
	for i, row := range rows {
		if row.id == id {
			m.collections[collection] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return errs.New("sink.memory", errs.CodeNotFound, errs.WithCollection(collection))
}

// SeedRow inserts a physical row directly, bypassing upsert-by-key. Tests use
// it to fabricate the duplicate states the auditor must clean up.
func (m *Memory) SeedRow(collection, id, key string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], memoryRow{
		id:     id,
		key:    key,
		fields: cloneFields(fields),
	})
}

func (r memoryRow) stored() StoredRecord {
	return StoredRecord{ID: r.id, Key: r.key, Fields: cloneFields(r.fields)}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
