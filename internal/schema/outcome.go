package schema

import (
	"sort"
	"time"
)

// ResultKind enumerates terminal states of one upload attempt.
type ResultKind string

const (
	// ResultCreated marks a record newly written to the destination.
	ResultCreated ResultKind = "created"
	// ResultUpdated marks an existing record fully replaced.
	ResultUpdated ResultKind = "updated"
	// ResultSkipped marks a record deliberately not written.
	ResultSkipped ResultKind = "skipped"
	// ResultFailed marks a record whose upload exhausted its retries.
	ResultFailed ResultKind = "failed"
)

// UploadOutcome records the terminal state of one record's upload attempt.
// Outcomes live only for the duration of a run; they are never persisted.
type UploadOutcome struct {
	Race        RaceID
	Kind        RecordKind
	Collection  string
	Key         string
	AttemptedAt time.Time
	Result      ResultKind
	Reason      string
	Err         error
}

// CollectionCounts tallies outcome results for one destination collection.
type CollectionCounts struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// RunSummary aggregates outcomes for user-visible reporting.
type RunSummary struct {
	ByCollection map[string]CollectionCounts
	Failures     []UploadOutcome
}

// Summarize folds a run's outcomes into per-collection counts plus the
// failure list with enough identity detail to permit targeted retry.
func Summarize(outcomes []UploadOutcome) RunSummary {
	summary := RunSummary{
		ByCollection: make(map[string]CollectionCounts),
		Failures:     nil,
	}
	for _, outcome := range outcomes {
		counts := summary.ByCollection[outcome.Collection]
		switch outcome.Result {
		case ResultCreated:
			counts.Created++
		case ResultUpdated:
			counts.Updated++
		case ResultSkipped:
			counts.Skipped++
		case ResultFailed:
			counts.Failed++
			summary.Failures = append(summary.Failures, outcome)
		}
		summary.ByCollection[outcome.Collection] = counts
	}
	return summary
}

// Collections returns the summarized collection names in stable order.
func (s RunSummary) Collections() []string {
	names := make([]string, 0, len(s.ByCollection))
	for name := range s.ByCollection {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clean reports whether the run completed without any failed outcome.
func (s RunSummary) Clean() bool {
	return len(s.Failures) == 0
}
