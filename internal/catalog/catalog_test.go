package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
)

func TestClassifyStampsStatus(t *testing.T) {
	ref := date(t, "2025-07-04")
	entries := []DateEntry{
		{Date: date(t, "2025-06-30"), Venue: schema.VenueShaTin, TotalRaces: 10},
		{Date: date(t, "2025-07-04"), Venue: schema.VenueHappyValley, TotalRaces: 9},
		{Date: date(t, "2025-07-10"), Venue: schema.VenueShaTin, TotalRaces: 11},
	}

	dates, err := Classify(entries, ref)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}

	byDate := make(map[string]schema.Status, len(dates))
	for _, d := range dates {
		byDate[d.Date.String()] = d.Status
	}
	if byDate["2025-06-30"] != schema.StatusCompleted {
		t.Error("expected 2025-06-30 completed")
	}
	if byDate["2025-07-04"] != schema.StatusToday {
		t.Error("expected 2025-07-04 today")
	}
	if byDate["2025-07-10"] != schema.StatusUpcoming {
		t.Error("expected 2025-07-10 upcoming")
	}

	// newest first, deterministic
	if dates[0].Date.String() != "2025-07-10" || dates[2].Date.String() != "2025-06-30" {
		t.Errorf("expected newest-first ordering, got %v", dates)
	}
}

func TestClassifyRejectsConflictingVenues(t *testing.T) {
	entries := []DateEntry{
		{Date: date(t, "2025-07-01"), Venue: schema.VenueShaTin},
		{Date: date(t, "2025-07-01"), Venue: schema.VenueHappyValley},
	}
	_, err := Classify(entries, date(t, "2025-07-04"))
	if err == nil {
		t.Fatal("expected validation error for conflicting venues")
	}
	var envelope *errs.E
	if !errors.As(err, &envelope) || envelope.Code != errs.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestClassifyDeduplicatesAgreeingEntries(t *testing.T) {
	entries := []DateEntry{
		{Date: date(t, "2025-07-01"), Venue: schema.VenueShaTin},
		{Date: date(t, "2025-07-01"), Venue: schema.VenueShaTin},
	}
	dates, err := Classify(entries, date(t, "2025-07-04"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected agreeing duplicate collapsed, got %d entries", len(dates))
	}
}

func TestFilterOrderOfPredicates(t *testing.T) {
	ref := date(t, "2025-08-01")
	entries := []DateEntry{
		{Date: date(t, "2025-06-18"), Venue: schema.VenueHappyValley},
		{Date: date(t, "2025-06-25"), Venue: schema.VenueShaTin},
		{Date: date(t, "2025-07-01"), Venue: schema.VenueShaTin},
		{Date: date(t, "2025-07-09"), Venue: schema.VenueHappyValley},
		{Date: date(t, "2025-08-20"), Venue: schema.VenueShaTin},
	}
	dates, err := Classify(entries, ref)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	got, err := Filter(dates, FilterOptions{Status: schema.StatusCompleted, Month: "2025/06", Limit: 1})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 date, got %d", len(got))
	}
	// limit applies last: the most recently classified June entry
	if got[0].Date.String() != "2025-06-25" {
		t.Errorf("expected 2025-06-25, got %s", got[0].Date)
	}

	if _, err := Filter(dates, FilterOptions{Month: "June 2025"}); err == nil {
		t.Error("expected error for malformed month")
	}
}

func TestFilterFinal(t *testing.T) {
	ref := date(t, "2025-07-04")
	entries := []DateEntry{
		{Date: date(t, "2025-06-30"), Venue: schema.VenueShaTin},
		{Date: date(t, "2025-07-04"), Venue: schema.VenueHappyValley},
		{Date: date(t, "2025-07-10"), Venue: schema.VenueShaTin},
	}
	dates, err := Classify(entries, ref)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	safe := FilterFinal(dates, false)
	if len(safe) != 2 {
		t.Fatalf("expected upcoming dropped, got %d entries", len(safe))
	}
	for _, d := range safe {
		if d.Status == schema.StatusUpcoming {
			t.Fatal("upcoming date leaked through default safety filter")
		}
	}

	all := FilterFinal(dates, true)
	if len(all) != len(dates) {
		t.Fatalf("expected opt-in to pass everything, got %d of %d", len(all), len(dates))
	}
	for i := range all {
		if all[i] != dates[i] {
			t.Fatal("expected order and content preserved under opt-in")
		}
	}
}

func TestLoadDates(t *testing.T) {
	doc := `[
		{"race_date": "2025-07-01", "racecourse": "ST", "total_races": 10},
		{"race_date": "2025-07-02", "racecourse": "HV", "total_races": 9}
	]`
	entries, err := LoadDates(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load dates: %v", err)
	}
	if len(entries) != 2 || entries[1].Venue != schema.VenueHappyValley || entries[0].TotalRaces != 10 {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	plain := `["2025-07-01", "2025-07-02"]`
	entries, err = LoadDates(strings.NewReader(plain))
	if err != nil {
		t.Fatalf("load plain dates: %v", err)
	}
	if len(entries) != 2 || entries[0].Venue != schema.VenueShaTin {
		t.Fatalf("unexpected plain entries: %+v", entries)
	}

	if _, err := LoadDates(strings.NewReader(`{"not": "a list"}`)); err == nil {
		t.Error("expected error for unrecognized document")
	}
}

func date(t *testing.T, raw string) schema.Date {
	t.Helper()
	d, err := schema.ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return d
}
