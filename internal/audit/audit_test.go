package audit

import (
	"context"
	"testing"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/route"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

func poolFields(date, venue string, raceNo int, pool, extractedAt string) map[string]any {
	return map[string]any{
		sink.FieldRaceDate:      date,
		sink.FieldVenue:         venue,
		sink.FieldRaceNumber:    raceNo,
		sink.FieldDiscriminator: pool,
		sink.FieldExtractedAt:   extractedAt,
	}
}

func TestSweepKeepsNewestDuplicate(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "old", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T22:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "new", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T23:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "other", "2025-07-01_ST_R1_PLACE",
		poolFields("2025-07-01", "ST", 1, "PLACE", "2025-07-01T23:00:00Z"))

	report, err := New(store).Sweep(context.Background(), route.CollectionPayoutPools)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Examined != 3 || report.DuplicateGroups != 1 || report.Removed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	rows, err := store.List(context.Background(), route.CollectionPayoutPools, sink.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(rows))
	}
	for _, row := range rows {
		if row.ID == "old" {
			t.Fatal("stale duplicate survived the sweep")
		}
	}
}

func TestSweepTieBreaksOnRecordID(t *testing.T) {
	store := sink.NewMemory()
	same := "2025-07-01T23:00:00Z"
	store.SeedRow(route.CollectionPayoutPools, "aaa", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", same))
	store.SeedRow(route.CollectionPayoutPools, "zzz", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", same))

	_, err := New(store).Sweep(context.Background(), route.CollectionPayoutPools)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	rows, _ := store.List(context.Background(), route.CollectionPayoutPools, sink.Filter{})
	if len(rows) != 1 || rows[0].ID != "zzz" {
		t.Fatalf("expected zzz to survive, got %+v", rows)
	}
}

// A sweep over a clean collection must change nothing, so running it twice is
// always safe.
func TestSweepIsIdempotent(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "a", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T22:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "b", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T23:00:00Z"))

	auditor := New(store)
	first, err := auditor.Sweep(context.Background(), route.CollectionPayoutPools)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	second, err := auditor.Sweep(context.Background(), route.CollectionPayoutPools)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if first.Removed != 1 || second.Removed != 0 {
		t.Fatalf("removed %d then %d, want 1 then 0", first.Removed, second.Removed)
	}
}

// Duplicates are grouped by the recomputed key, so a wrong stored key field
// cannot shield a duplicate from the sweep.
func TestSweepRecomputesKeys(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "honest", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T22:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "liar", "2025-07-01_HV_R9_TRIO",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T23:00:00Z"))

	report, err := New(store).Sweep(context.Background(), route.CollectionPayoutPools)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Removed != 1 {
		t.Fatalf("expected the hidden duplicate removed, report %+v", report)
	}
	if report.Miskeyed != 1 {
		t.Fatalf("expected 1 miskeyed row, report %+v", report)
	}
	rows, _ := store.List(context.Background(), route.CollectionPayoutPools, sink.Filter{})
	if len(rows) != 1 || rows[0].ID != "liar" {
		t.Fatalf("newest copy must survive regardless of its stored key: %+v", rows)
	}
}

func TestSweepLeavesUnkeyedRowsAlone(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "broken", "",
		map[string]any{sink.FieldRaceDate: "not-a-date"})

	report, err := New(store).Sweep(context.Background(), route.CollectionPayoutPools)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Unkeyed != 1 || report.Removed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	rows, _ := store.List(context.Background(), route.CollectionPayoutPools, sink.Filter{})
	if len(rows) != 1 {
		t.Fatal("unkeyed rows must never be deleted")
	}
}

func TestSweepVenuesReportsWithoutRemove(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "good", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T23:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "stray", "2025-07-01_HV_R1_WIN",
		poolFields("2025-07-01", "HV", 1, "WIN", "2025-07-01T23:00:00Z"))

	reports, err := New(store).SweepVenues(context.Background(), []schema.RaceDate{catalogDay(t, "2025-07-01", schema.VenueShaTin)}, false)
	if err != nil {
		t.Fatalf("sweep venues: %v", err)
	}
	if len(reports) != 1 || reports[0].Conflicted != 1 || reports[0].Removed != 0 {
		t.Fatalf("unexpected reports %+v", reports)
	}
	rows, _ := store.List(context.Background(), route.CollectionPayoutPools, sink.Filter{})
	if len(rows) != 2 {
		t.Fatal("report-only sweep must not delete anything")
	}
}

func TestSweepVenuesRemovesConflictedRows(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "good", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T23:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "stray", "2025-07-01_HV_R1_WIN",
		poolFields("2025-07-01", "HV", 1, "WIN", "2025-07-01T23:00:00Z"))

	reports, err := New(store).SweepVenues(context.Background(), []schema.RaceDate{catalogDay(t, "2025-07-01", schema.VenueShaTin)}, true)
	if err != nil {
		t.Fatalf("sweep venues: %v", err)
	}
	if reports[0].Conflicted != 1 || reports[0].Removed != 1 {
		t.Fatalf("unexpected reports %+v", reports)
	}
	rows, _ := store.List(context.Background(), route.CollectionPayoutPools, sink.Filter{})
	if len(rows) != 1 || rows[0].ID != "good" {
		t.Fatalf("only the catalog venue's row should survive: %+v", rows)
	}
}

func catalogDay(t *testing.T, raw string, venue schema.Venue) schema.RaceDate {
	t.Helper()
	date, err := schema.ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return schema.RaceDate{Date: date, Venue: venue, Status: schema.StatusCompleted, TotalRaces: 1}
}

func TestSweepAllCoversEveryCollection(t *testing.T) {
	reports, err := New(sink.NewMemory()).SweepAll(context.Background())
	if err != nil {
		t.Fatalf("sweep all: %v", err)
	}
	if len(reports) != len(route.Collections()) {
		t.Fatalf("expected %d reports, got %d", len(route.Collections()), len(reports))
	}
}

type faultyLister struct {
	*sink.Memory
	failCollection string
}

func (f *faultyLister) List(ctx context.Context, collection string, filter sink.Filter) ([]sink.StoredRecord, error) {
	if collection == f.failCollection {
		return nil, errs.New("audit_test", errs.CodeTransient, errs.WithMessage("list failed"))
	}
	return f.Memory.List(ctx, collection, filter)
}

// One broken collection must not shield duplicates in the others.
func TestSweepAllContinuesPastFailingCollection(t *testing.T) {
	store := sink.NewMemory()
	store.SeedRow(route.CollectionPayoutPools, "a", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T22:00:00Z"))
	store.SeedRow(route.CollectionPayoutPools, "b", "2025-07-01_ST_R1_WIN",
		poolFields("2025-07-01", "ST", 1, "WIN", "2025-07-01T23:00:00Z"))
	faulty := &faultyLister{Memory: store, failCollection: route.CollectionPerformance}

	reports, err := New(faulty).SweepAll(context.Background())
	if err == nil {
		t.Fatal("expected the failing collection to surface in the error")
	}
	if len(reports) != len(route.Collections())-1 {
		t.Fatalf("expected %d reports, got %d", len(route.Collections())-1, len(reports))
	}
	var removed int
	for _, report := range reports {
		removed += report.Removed
	}
	if removed != 1 {
		t.Fatalf("the healthy collection's duplicate should still be removed, got %d", removed)
	}
}
