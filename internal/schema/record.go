package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hkracing/racesync/errs"
)

// RecordKind enumerates the closed set of normalized record variants.
type RecordKind string

const (
	// KindPerformance identifies race-day performance summaries.
	KindPerformance RecordKind = "Performance"
	// KindPerformanceAnalysis identifies statistical performance analysis.
	KindPerformanceAnalysis RecordKind = "PerformanceAnalysis"
	// KindHorsePerformance identifies per-horse performance rows.
	KindHorsePerformance RecordKind = "HorsePerformance"
	// KindIncident identifies individual stewards' incident reports.
	KindIncident RecordKind = "Incident"
	// KindIncidentAnalysis identifies race-level incident analysis.
	KindIncidentAnalysis RecordKind = "IncidentAnalysis"
	// KindPayoutSummary identifies race-level payout summaries.
	KindPayoutSummary RecordKind = "PayoutSummary"
	// KindPayoutPool identifies individual betting pool payouts.
	KindPayoutPool RecordKind = "PayoutPool"
	// KindPayoutAnalysis identifies payout statistics and analysis.
	KindPayoutAnalysis RecordKind = "PayoutAnalysis"
)

// Kinds lists every record kind in routing order.
func Kinds() []RecordKind {
	return []RecordKind{
		KindPerformance,
		KindPerformanceAnalysis,
		KindHorsePerformance,
		KindIncident,
		KindIncidentAnalysis,
		KindPayoutSummary,
		KindPayoutPool,
		KindPayoutAnalysis,
	}
}

// PoolType enumerates betting pools offered per race.
type PoolType string

const (
	// PoolWin pays on the first-place finisher.
	PoolWin PoolType = "WIN"
	// PoolPlace pays on a top-three finish.
	PoolPlace PoolType = "PLACE"
	// PoolQuinella pays on the first two in either order.
	PoolQuinella PoolType = "QUINELLA"
	// PoolQuinellaPlace pays on any two of the first three.
	PoolQuinellaPlace PoolType = "QUINELLA_PLACE"
	// PoolForecast pays on the first two in exact order.
	PoolForecast PoolType = "FORECAST"
	// PoolTierce pays on the first three in exact order.
	PoolTierce PoolType = "TIERCE"
	// PoolTrio pays on the first three in any order.
	PoolTrio PoolType = "TRIO"
	// PoolFirstFour pays on the first four in any order.
	PoolFirstFour PoolType = "FIRST_FOUR"
	// PoolQuartet pays on the first four in exact order.
	PoolQuartet PoolType = "QUARTET"
	// PoolDouble spans the winners of two consecutive races.
	PoolDouble PoolType = "DOUBLE"
	// PoolDoubleTrio spans the trios of two consecutive races.
	PoolDoubleTrio PoolType = "DOUBLE_TRIO"
)

var poolTypeAliases = map[string]PoolType{
	"WIN":            PoolWin,
	"獨贏":             PoolWin,
	"PLACE":          PoolPlace,
	"位置":             PoolPlace,
	"QUINELLA":       PoolQuinella,
	"連贏":             PoolQuinella,
	"QUINELLA_PLACE": PoolQuinellaPlace,
	"位置Q":            PoolQuinellaPlace,
	"FORECAST":       PoolForecast,
	"二重彩":            PoolForecast,
	"TIERCE":         PoolTierce,
	"三重彩":            PoolTierce,
	"TRIO":           PoolTrio,
	"單T":             PoolTrio,
	"FIRST_FOUR":     PoolFirstFour,
	"四連環":            PoolFirstFour,
	"QUARTET":        PoolQuartet,
	"四重彩":            PoolQuartet,
}

// ParsePoolType maps raw pool labels, including the upstream Chinese labels,
// onto canonical pool types. Double pools are detected by pattern because the
// upstream suffixes them with leg numbers.
func ParsePoolType(raw string) (PoolType, error) {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if pool, ok := poolTypeAliases[label]; ok {
		return pool, nil
	}
	if strings.Contains(label, "孖T") {
		return PoolDoubleTrio, nil
	}
	if strings.Contains(label, "孖寶") || strings.Contains(label, "DOUBLE") {
		return PoolDouble, nil
	}
	return "", errs.New("schema/pool", errs.CodeMalformedRecord,
		errs.WithMessage(fmt.Sprintf("unknown pool type %q", raw)))
}

// Record is one normalized variant ready for routing and upload.
// Discriminator distinguishes sibling records of multi-record kinds
// (horse number, incident sequence, pool type); scalar kinds leave it empty.
type Record struct {
	Kind          RecordKind
	Race          RaceID
	Discriminator string
	Payload       any
	ExtractedAt   time.Time
}

// PerformancePayload summarizes one race's performance figures.
type PerformancePayload struct {
	RaceName        string          `json:"race_name"`
	RaceClass       string          `json:"race_class"`
	Distance        string          `json:"distance"`
	TrackCondition  string          `json:"track_condition"`
	PrizeMoney      string          `json:"prize_money"`
	TotalRunners    int             `json:"total_runners"`
	WinningTime     string          `json:"winning_time"`
	SectionalTimes  []string        `json:"sectional_times"`
	FastestSection  decimal.Decimal `json:"fastest_sectional"`
	SlowestSection  decimal.Decimal `json:"slowest_sectional"`
	ConditionRating int             `json:"track_condition_rating"`
}

// PerformanceAnalysisPayload carries derived statistics for one race.
type PerformanceAnalysisPayload struct {
	TotalRunners         int             `json:"total_runners"`
	AverageOdds          decimal.Decimal `json:"average_odds"`
	FavoriteOdds         decimal.Decimal `json:"favorite_odds"`
	LongestOdds          decimal.Decimal `json:"longest_odds"`
	FavoritesPerformance map[string]any  `json:"favorites_performance"`
	WeightDistribution   map[string]any  `json:"weight_distribution"`
	OddsAnalysis         map[string]any  `json:"odds_analysis"`
}

// HorsePerformancePayload describes a single runner's result.
type HorsePerformancePayload struct {
	HorseNumber     int             `json:"horse_number"`
	HorseName       string          `json:"horse_name"`
	HorseCode       string          `json:"horse_code"`
	Jockey          string          `json:"jockey"`
	Trainer         string          `json:"trainer"`
	FinishPosition  int             `json:"finish_position"`
	FinishTime      string          `json:"finish_time"`
	Draw            int             `json:"draw"`
	ActualWeight    int             `json:"actual_weight"`
	RunningPosition string          `json:"running_position"`
	WinOdds         decimal.Decimal `json:"win_odds"`
}

// IncidentPayload records one stewards' report entry.
type IncidentPayload struct {
	Sequence     int    `json:"sequence"`
	HorseNumber  int    `json:"horse_number"`
	HorseName    string `json:"horse_name"`
	IncidentType string `json:"incident_type"`
	Description  string `json:"description"`
}

// IncidentAnalysisPayload aggregates incident statistics for a race.
type IncidentAnalysisPayload struct {
	TotalIncidents   int            `json:"total_incidents"`
	IncidentsByType  map[string]int `json:"incidents_by_type"`
	HorsesInvolved   int            `json:"horses_involved"`
	SeverityAssessed string         `json:"severity_assessed"`
}

// PayoutSummaryPayload carries race-level payout totals.
type PayoutSummaryPayload struct {
	TotalPools     int             `json:"total_pools"`
	TotalTurnover  decimal.Decimal `json:"total_turnover"`
	HighestPool    PoolType        `json:"highest_pool"`
	HighestPayout  decimal.Decimal `json:"highest_payout"`
	ExoticPoolsSum decimal.Decimal `json:"exotic_pools_sum"`
}

// PayoutPoolPayload records the dividend of one betting pool.
type PayoutPoolPayload struct {
	Pool        PoolType        `json:"pool_type"`
	Combination string          `json:"winning_combination"`
	Amount      decimal.Decimal `json:"payout_amount"`
}

// PayoutAnalysisPayload carries payout statistics for a race.
type PayoutAnalysisPayload struct {
	PoolCount      int             `json:"pool_count"`
	AveragePayout  decimal.Decimal `json:"average_payout"`
	ExoticCount    int             `json:"exotic_count"`
	StandardCount  int             `json:"standard_count"`
	LargestPool    PoolType        `json:"largest_pool"`
	PayoutVariance decimal.Decimal `json:"payout_variance"`
}
