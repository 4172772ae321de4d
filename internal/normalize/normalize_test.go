package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/source"
)

func fixedClock() time.Time {
	return time.Date(2025, time.July, 2, 8, 0, 0, 0, time.UTC)
}

func raceID(t *testing.T, raceNo int) schema.RaceID {
	t.Helper()
	date, err := schema.ParseDate("2025-07-01")
	require.NoError(t, err)
	return schema.RaceID{Date: date, Venue: schema.VenueShaTin, RaceNo: raceNo}
}

func wellFormedPayload(horses int) source.RawPayload {
	results := make([]any, 0, horses)
	for i := 1; i <= horses; i++ {
		results = append(results, map[string]any{
			"horse_number":    float64(i),
			"horse_name":      "Runner",
			"jockey":          "J. Rider",
			"trainer":         "T. Handler",
			"finish_position": float64(i),
			"draw":            float64(i),
			"actual_weight":   float64(120 + i),
			"win_odds":        "4.5",
		})
	}
	return source.RawPayload{
		"scraped_at": "2025-07-01T23:10:00Z",
		"race_info": map[string]any{
			"race_name":       "Sha Tin Handicap",
			"race_class":      "Class 4",
			"distance":        "1200M",
			"track_condition": "GOOD",
		},
		"performance": map[string]any{
			"race_performance": map[string]any{
				"total_runners": float64(horses),
				"winning_time":  "1:09.50",
			},
		},
		"field_analysis": map[string]any{
			"total_runners": float64(horses),
			"average_odds":  "12.4",
		},
		"incidents": []any{
			map[string]any{"incident_type": "interference", "horse_number": float64(2), "description": "bumped at start"},
		},
		"payouts": map[string]any{
			"獨贏":  map[string]any{"winning_combination": "5", "payout_amount": "62.50"},
			"位置":  map[string]any{"winning_combination": "5", "payout_amount": "21.00"},
			"三重彩": map[string]any{"winning_combination": "5,2,9", "payout_amount": "3,120.00"},
		},
		"results": results,
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	const horses = 8
	records, skipped, err := New().WithClock(fixedClock).Normalize(wellFormedPayload(horses), raceID(t, 5))
	require.NoError(t, err)
	require.Empty(t, skipped)

	byKind := make(map[schema.RecordKind][]schema.Record)
	for _, rec := range records {
		byKind[rec.Kind] = append(byKind[rec.Kind], rec)
	}

	require.Len(t, byKind[schema.KindHorsePerformance], horses)
	seen := make(map[string]bool)
	for _, rec := range byKind[schema.KindHorsePerformance] {
		require.False(t, seen[rec.Discriminator], "duplicate horse discriminator %s", rec.Discriminator)
		seen[rec.Discriminator] = true
	}

	require.Len(t, byKind[schema.KindPerformance], 1)
	require.Len(t, byKind[schema.KindPerformanceAnalysis], 1)
	require.Len(t, byKind[schema.KindIncident], 1)
	require.Len(t, byKind[schema.KindIncidentAnalysis], 1)
	require.Len(t, byKind[schema.KindPayoutSummary], 1)
	require.Len(t, byKind[schema.KindPayoutPool], 3)
	require.Len(t, byKind[schema.KindPayoutAnalysis], 1)

	perf := byKind[schema.KindPerformance][0].Payload.(schema.PerformancePayload)
	require.Equal(t, "Sha Tin Handicap", perf.RaceName)
	require.Equal(t, horses, perf.TotalRunners)

	pools := make(map[schema.PoolType]schema.PayoutPoolPayload)
	for _, rec := range byKind[schema.KindPayoutPool] {
		payload := rec.Payload.(schema.PayoutPoolPayload)
		pools[payload.Pool] = payload
	}
	require.Contains(t, pools, schema.PoolWin)
	require.Contains(t, pools, schema.PoolTierce)
	require.Equal(t, "3120", pools[schema.PoolTierce].Amount.String())

	// extraction timestamp comes from the payload, not the clock
	require.Equal(t, "2025-07-01T23:10:00Z", records[0].ExtractedAt.Format(time.RFC3339))
}

func TestNormalizeRaceNumberBounds(t *testing.T) {
	for _, raceNo := range []int{0, schema.MaxRacesPerDay + 1} {
		_, _, err := New().Normalize(wellFormedPayload(4), raceID(t, raceNo))
		require.Error(t, err, "race number %d", raceNo)
		var envelope *errs.E
		require.True(t, errors.As(err, &envelope))
		require.Equal(t, errs.CodeMalformedRecord, envelope.Code)
	}
}

func TestNormalizeEmptyHorseListFails(t *testing.T) {
	payload := wellFormedPayload(4)
	payload["results"] = []any{}
	_, _, err := New().Normalize(payload, raceID(t, 1))
	require.Error(t, err)
	require.Equal(t, errs.CodeMalformedRecord, errs.CodeOf(err))
}

func TestNormalizeSkipsMalformedSubRecords(t *testing.T) {
	payload := wellFormedPayload(3)
	results := payload["results"].([]any)
	results = append(results, map[string]any{"horse_name": ""}) // no number, no name
	payload["results"] = results
	payload["payouts"].(map[string]any)["神秘池"] = map[string]any{"payout_amount": "1.0"}

	records, skipped, err := New().WithClock(fixedClock).Normalize(payload, raceID(t, 1))
	require.NoError(t, err)

	var horses int
	for _, rec := range records {
		if rec.Kind == schema.KindHorsePerformance {
			horses++
		}
	}
	require.Equal(t, 3, horses, "malformed row must not abort healthy rows")

	require.Len(t, skipped, 2)
	for _, outcome := range skipped {
		require.Equal(t, schema.ResultSkipped, outcome.Result)
		require.NotEmpty(t, outcome.Reason)
	}
}

func TestNormalizeMigratesLegacyOdds(t *testing.T) {
	payload := wellFormedPayload(2)
	results := payload["results"].([]any)
	for _, row := range results {
		delete(row.(map[string]any), "win_odds")
	}
	payload["odds"] = []any{"2.2", "8.8"}

	records, _, err := New().WithClock(fixedClock).Normalize(payload, raceID(t, 1))
	require.NoError(t, err)

	odds := make(map[string]string)
	for _, rec := range records {
		if rec.Kind == schema.KindHorsePerformance {
			horse := rec.Payload.(schema.HorsePerformancePayload)
			odds[rec.Discriminator] = horse.WinOdds.String()
		}
	}
	require.Equal(t, "2.2", odds["1"])
	require.Equal(t, "8.8", odds["2"])
}
