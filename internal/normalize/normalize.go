// Package normalize converts raw upstream payloads into typed record variants.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/source"
)

// Normalizer expands one raw race payload into the full set of typed record
// variants. Malformed sub-records are skipped with a recorded outcome and do
// not abort the remainder of the payload.
type Normalizer struct {
	now func() time.Time
}

// New constructs a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// WithClock overrides the normalizer clock, primarily for testing.
func (n *Normalizer) WithClock(clock func() time.Time) *Normalizer {
	if clock != nil {
		n.now = clock
	}
	return n
}

// Normalize converts raw into typed records for the identified race. The
// returned outcomes describe skipped sub-records; a malformed top-level
// payload fails the whole race with a malformed_record error.
func (n *Normalizer) Normalize(raw source.RawPayload, id schema.RaceID) ([]schema.Record, []schema.UploadOutcome, error) {
	if err := id.Validate(); err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, errs.New("normalize", errs.CodeMalformedRecord,
			errs.WithMessage("nil payload"), errs.WithRaceKey(id.String()))
	}

	extractedAt := n.extractionTime(raw)
	var records []schema.Record
	var skipped []schema.UploadOutcome

	results := sliceOfMaps(raw, "results")
	if len(results) == 0 {
		return nil, nil, errs.New("normalize", errs.CodeMalformedRecord,
			errs.WithMessage("empty horse list"), errs.WithRaceKey(id.String()))
	}
	migrateLegacyOdds(raw, results)

	records = append(records, n.performanceRecord(raw, id, extractedAt))
	records = append(records, n.analysisRecord(raw, id, extractedAt))

	horses, horseSkips := n.horseRecords(results, id, extractedAt)
	records = append(records, horses...)
	skipped = append(skipped, horseSkips...)

	incidents, incidentSkips := n.incidentRecords(raw, id, extractedAt)
	records = append(records, incidents...)
	skipped = append(skipped, incidentSkips...)
	records = append(records, n.incidentAnalysisRecord(incidents, id, extractedAt))

	pools, poolSkips := n.poolRecords(raw, id, extractedAt)
	records = append(records, pools...)
	skipped = append(skipped, poolSkips...)
	records = append(records, n.payoutSummaryRecord(pools, id, extractedAt))
	records = append(records, n.payoutAnalysisRecord(pools, id, extractedAt))

	return records, skipped, nil
}

func (n *Normalizer) extractionTime(raw source.RawPayload) time.Time {
	for _, field := range []string{"scraped_at", "extracted_at"} {
		if s := stringField(raw, field); s != "" {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts
			}
		}
	}
	return n.now()
}

func (n *Normalizer) performanceRecord(raw source.RawPayload, id schema.RaceID, at time.Time) schema.Record {
	info := mapField(raw, "race_info")
	perf := mapField(mapField(raw, "performance"), "race_performance")
	payload := schema.PerformancePayload{
		RaceName:        stringField(info, "race_name"),
		RaceClass:       stringField(info, "race_class"),
		Distance:        stringField(info, "distance"),
		TrackCondition:  stringField(info, "track_condition"),
		PrizeMoney:      stringField(info, "prize_money"),
		TotalRunners:    intField(perf, "total_runners"),
		WinningTime:     stringField(perf, "winning_time"),
		SectionalTimes:  stringSlice(perf, "sectional_times"),
		FastestSection:  decimalField(perf, "fastest_sectional"),
		SlowestSection:  decimalField(perf, "slowest_sectional"),
		ConditionRating: intField(perf, "track_condition_rating"),
	}
	return schema.Record{Kind: schema.KindPerformance, Race: id, Payload: payload, ExtractedAt: at}
}

func (n *Normalizer) analysisRecord(raw source.RawPayload, id schema.RaceID, at time.Time) schema.Record {
	analysis := mapField(raw, "field_analysis")
	payload := schema.PerformanceAnalysisPayload{
		TotalRunners:         intField(analysis, "total_runners"),
		AverageOdds:          decimalField(analysis, "average_odds"),
		FavoriteOdds:         decimalField(analysis, "favorite_odds"),
		LongestOdds:          decimalField(analysis, "longest_odds"),
		FavoritesPerformance: mapField(analysis, "favorites_performance"),
		WeightDistribution:   mapField(analysis, "weight_distribution"),
		OddsAnalysis:         mapField(analysis, "odds_analysis"),
	}
	return schema.Record{Kind: schema.KindPerformanceAnalysis, Race: id, Payload: payload, ExtractedAt: at}
}

func (n *Normalizer) horseRecords(results []map[string]any, id schema.RaceID, at time.Time) ([]schema.Record, []schema.UploadOutcome) {
	var records []schema.Record
	var skipped []schema.UploadOutcome
	for i, row := range results {
		horseNo := intField(row, "horse_number")
		name := stringField(row, "horse_name")
		if horseNo <= 0 || name == "" {
			skipped = append(skipped, schema.UploadOutcome{
				Race:        id,
				Kind:        schema.KindHorsePerformance,
				AttemptedAt: at,
				Result:      schema.ResultSkipped,
				Reason:      fmt.Sprintf("malformed horse row %d", i),
			})
			continue
		}
		payload := schema.HorsePerformancePayload{
			HorseNumber:     horseNo,
			HorseName:       name,
			HorseCode:       stringField(row, "horse_code"),
			Jockey:          stringField(row, "jockey"),
			Trainer:         stringField(row, "trainer"),
			FinishPosition:  intField(row, "finish_position"),
			FinishTime:      stringField(row, "finish_time"),
			Draw:            intField(row, "draw"),
			ActualWeight:    intField(row, "actual_weight"),
			RunningPosition: stringField(row, "running_position"),
			WinOdds:         decimalField(row, "win_odds"),
		}
		records = append(records, schema.Record{
			Kind:          schema.KindHorsePerformance,
			Race:          id,
			Discriminator: strconv.Itoa(horseNo),
			Payload:       payload,
			ExtractedAt:   at,
		})
	}
	return records, skipped
}

func (n *Normalizer) incidentRecords(raw source.RawPayload, id schema.RaceID, at time.Time) ([]schema.Record, []schema.UploadOutcome) {
	var records []schema.Record
	var skipped []schema.UploadOutcome
	for i, row := range sliceOfMaps(raw, "incidents") {
		incidentType := stringField(row, "incident_type")
		description := stringField(row, "description")
		if incidentType == "" && description == "" {
			skipped = append(skipped, schema.UploadOutcome{
				Race:        id,
				Kind:        schema.KindIncident,
				AttemptedAt: at,
				Result:      schema.ResultSkipped,
				Reason:      fmt.Sprintf("malformed incident row %d", i),
			})
			continue
		}
		seq := i + 1
		payload := schema.IncidentPayload{
			Sequence:     seq,
			HorseNumber:  intField(row, "horse_number"),
			HorseName:    stringField(row, "horse_name"),
			IncidentType: incidentType,
			Description:  description,
		}
		records = append(records, schema.Record{
			Kind:          schema.KindIncident,
			Race:          id,
			Discriminator: strconv.Itoa(seq),
			Payload:       payload,
			ExtractedAt:   at,
		})
	}
	return records, skipped
}

func (n *Normalizer) incidentAnalysisRecord(incidents []schema.Record, id schema.RaceID, at time.Time) schema.Record {
	byType := make(map[string]int)
	horses := make(map[int]struct{})
	for _, rec := range incidents {
		payload, ok := rec.Payload.(schema.IncidentPayload)
		if !ok {
			continue
		}
		byType[payload.IncidentType]++
		if payload.HorseNumber > 0 {
			horses[payload.HorseNumber] = struct{}{}
		}
	}
	severity := "routine"
	if len(incidents) > 3 {
		severity = "elevated"
	}
	payload := schema.IncidentAnalysisPayload{
		TotalIncidents:   len(incidents),
		IncidentsByType:  byType,
		HorsesInvolved:   len(horses),
		SeverityAssessed: severity,
	}
	return schema.Record{Kind: schema.KindIncidentAnalysis, Race: id, Payload: payload, ExtractedAt: at}
}

func (n *Normalizer) poolRecords(raw source.RawPayload, id schema.RaceID, at time.Time) ([]schema.Record, []schema.UploadOutcome) {
	payouts := mapField(raw, "payouts")
	labels := make([]string, 0, len(payouts))
	for label := range payouts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var records []schema.Record
	var skipped []schema.UploadOutcome
	for _, label := range labels {
		pool, err := schema.ParsePoolType(label)
		if err != nil {
			skipped = append(skipped, schema.UploadOutcome{
				Race:        id,
				Kind:        schema.KindPayoutPool,
				AttemptedAt: at,
				Result:      schema.ResultSkipped,
				Reason:      fmt.Sprintf("unknown pool type %q", label),
			})
			continue
		}
		entry, ok := payouts[label].(map[string]any)
		if !ok {
			skipped = append(skipped, schema.UploadOutcome{
				Race:        id,
				Kind:        schema.KindPayoutPool,
				AttemptedAt: at,
				Result:      schema.ResultSkipped,
				Reason:      fmt.Sprintf("malformed pool entry %q", label),
			})
			continue
		}
		payload := schema.PayoutPoolPayload{
			Pool:        pool,
			Combination: stringField(entry, "winning_combination"),
			Amount:      decimalField(entry, "payout_amount"),
		}
		records = append(records, schema.Record{
			Kind:          schema.KindPayoutPool,
			Race:          id,
			Discriminator: string(pool),
			Payload:       payload,
			ExtractedAt:   at,
		})
	}
	return records, skipped
}

func (n *Normalizer) payoutSummaryRecord(pools []schema.Record, id schema.RaceID, at time.Time) schema.Record {
	var total decimal.Decimal
	var exoticSum decimal.Decimal
	var highest decimal.Decimal
	var highestPool schema.PoolType
	for _, rec := range pools {
		payload, ok := rec.Payload.(schema.PayoutPoolPayload)
		if !ok {
			continue
		}
		total = total.Add(payload.Amount)
		if isExotic(payload.Pool) {
			exoticSum = exoticSum.Add(payload.Amount)
		}
		if payload.Amount.GreaterThan(highest) {
			highest = payload.Amount
			highestPool = payload.Pool
		}
	}
	payload := schema.PayoutSummaryPayload{
		TotalPools:     len(pools),
		TotalTurnover:  total,
		HighestPool:    highestPool,
		HighestPayout:  highest,
		ExoticPoolsSum: exoticSum,
	}
	return schema.Record{Kind: schema.KindPayoutSummary, Race: id, Payload: payload, ExtractedAt: at}
}

func (n *Normalizer) payoutAnalysisRecord(pools []schema.Record, id schema.RaceID, at time.Time) schema.Record {
	var sum decimal.Decimal
	var exotic, standard int
	var largest decimal.Decimal
	var largestPool schema.PoolType
	amounts := make([]decimal.Decimal, 0, len(pools))
	for _, rec := range pools {
		payload, ok := rec.Payload.(schema.PayoutPoolPayload)
		if !ok {
			continue
		}
		amounts = append(amounts, payload.Amount)
		sum = sum.Add(payload.Amount)
		if isExotic(payload.Pool) {
			exotic++
		} else {
			standard++
		}
		if payload.Amount.GreaterThan(largest) {
			largest = payload.Amount
			largestPool = payload.Pool
		}
	}
	var average, variance decimal.Decimal
	if len(amounts) > 0 {
		count := decimal.NewFromInt(int64(len(amounts)))
		average = sum.Div(count)
		var squares decimal.Decimal
		for _, amount := range amounts {
			diff := amount.Sub(average)
			squares = squares.Add(diff.Mul(diff))
		}
		variance = squares.Div(count)
	}
	payload := schema.PayoutAnalysisPayload{
		PoolCount:      len(pools),
		AveragePayout:  average,
		ExoticCount:    exotic,
		StandardCount:  standard,
		LargestPool:    largestPool,
		PayoutVariance: variance,
	}
	return schema.Record{Kind: schema.KindPayoutAnalysis, Race: id, Payload: payload, ExtractedAt: at}
}

func isExotic(pool schema.PoolType) bool {
	switch pool {
	case schema.PoolTierce, schema.PoolTrio, schema.PoolFirstFour, schema.PoolQuartet,
		schema.PoolDouble, schema.PoolDoubleTrio:
		return true
	default:
		return false
	}
}

// migrateLegacyOdds folds the legacy flat odds list into per-horse win_odds
// fields so only the canonical shape ever reaches the destination.
func migrateLegacyOdds(raw source.RawPayload, results []map[string]any) {
	legacy, ok := raw["odds"].([]any)
	if !ok || len(legacy) == 0 {
		return
	}
	for i, row := range results {
		if _, present := row["win_odds"]; present {
			continue
		}
		if i < len(legacy) {
			row["win_odds"] = legacy[i]
		}
	}
}
