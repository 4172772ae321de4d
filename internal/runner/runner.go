// Package runner orchestrates the sync pipeline: fetch each race day,
// normalize its records, and reconcile them into the sink.
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hkracing/racesync/config"
	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/normalize"
	"github.com/hkracing/racesync/internal/observability"
	"github.com/hkracing/racesync/internal/reconcile"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/source"
	"github.com/hkracing/racesync/internal/telemetry"
	"github.com/hkracing/racesync/lib/async"
)

// DayResult is the pipeline outcome for one race day.
type DayResult struct {
	Day      schema.RaceDate
	Outcomes []schema.UploadOutcome
	// Skipped marks days that produced no records on purpose: nothing
	// published yet, or the source has aged the day out.
	Skipped bool
	Reason  string
	Err     error
}

// Result aggregates one run.
type Result struct {
	RunID   string
	Days    []DayResult
	Summary schema.RunSummary
}

// Runner wires the pipeline stages together. Days run concurrently on a
// bounded pool; records within one day upload as a single batch.
type Runner struct {
	source     source.RawRecordSource
	normalizer *normalize.Normalizer
	uploader   *reconcile.Uploader
	metrics    *telemetry.PipelineMetrics
	settings   config.RunnerSettings
	clock      func() time.Time
}

// New constructs a Runner. Metrics may be nil.
func New(src source.RawRecordSource, normalizer *normalize.Normalizer, uploader *reconcile.Uploader,
	metrics *telemetry.PipelineMetrics, settings config.RunnerSettings) *Runner {
	return &Runner{
		source:     src,
		normalizer: normalizer,
		uploader:   uploader,
		metrics:    metrics,
		settings:   settings,
		clock:      time.Now,
	}
}

// Run processes the given days and returns per-day results in input order.
// A fatal sink error cancels the remaining days and is returned alongside the
// partial result.
func (r *Runner) Run(ctx context.Context, days []schema.RaceDate) (Result, error) {
	result := Result{RunID: uuid.NewString(), Days: make([]DayResult, len(days))}
	if len(days) == 0 {
		result.Summary = schema.Summarize(nil)
		return result, nil
	}

	observability.Log().Info("run started",
		observability.Field{Key: "run_id", Value: result.RunID},
		observability.Field{Key: "days", Value: len(days)},
	)

	pool, err := async.NewPool(r.settings.Workers, r.settings.QueueDepth)
	if err != nil {
		return result, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, len(days))
	for i, day := range days {
		index, current := i, day
		if err := pool.Submit(runCtx, func(taskCtx context.Context) error {
			dayResult := r.runDay(taskCtx, current)
			result.Days[index] = dayResult
			if dayResult.Err != nil && errs.IsFatalSink(dayResult.Err) {
				fatal <- dayResult.Err
				cancel()
			}
			return dayResult.Err
		}); err != nil {
			result.Days[index] = DayResult{Day: current, Skipped: true, Reason: "not scheduled", Err: err}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer shutdownCancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		observability.Log().Error("pool shutdown incomplete",
			observability.Field{Key: "run_id", Value: result.RunID},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}

	var outcomes []schema.UploadOutcome
	for _, dayResult := range result.Days {
		outcomes = append(outcomes, dayResult.Outcomes...)
	}
	result.Summary = schema.Summarize(outcomes)

	select {
	case fatalErr := <-fatal:
		observability.Log().Error("run aborted",
			observability.Field{Key: "run_id", Value: result.RunID},
			observability.Field{Key: "error", Value: fatalErr.Error()},
		)
		return result, fatalErr
	default:
	}
	if err := ctx.Err(); err != nil {
		return result, errs.New("runner", errs.CodeTransient,
			errs.WithMessage("run cancelled"), errs.WithCause(err))
	}

	observability.Log().Info("run finished",
		observability.Field{Key: "run_id", Value: result.RunID},
		observability.Field{Key: "clean", Value: result.Summary.Clean()},
	)
	return result, nil
}

func (r *Runner) runDay(ctx context.Context, day schema.RaceDate) DayResult {
	dayResult := DayResult{Day: day}
	started := r.clock()

	payload, err := r.source.Fetch(ctx, day.Date, day.Venue)
	r.metrics.RecordFetch(ctx, day.Venue, err == nil)
	switch {
	case err == nil:
	case errs.IsNotFound(err):
		dayResult.Skipped = true
		dayResult.Reason = "no results published"
		return dayResult
	case errs.IsUnavailable(err):
		dayResult.Skipped = true
		dayResult.Reason = "aged out of source retention"
		return dayResult
	default:
		dayResult.Err = err
		return dayResult
	}

	var records []schema.Record
	for _, race := range payload.Races {
		id := schema.RaceID{Date: day.Date, Venue: day.Venue, RaceNo: race.RaceNo}
		raceRecords, skipped, err := r.normalizer.Normalize(race.Fields, id)
		if err != nil {
			// one malformed race must not sink the whole day
			dayResult.Outcomes = append(dayResult.Outcomes, schema.UploadOutcome{
				Race:        id,
				AttemptedAt: r.clock(),
				Result:      schema.ResultFailed,
				Reason:      "normalization failed",
				Err:         err,
			})
			continue
		}
		dayResult.Outcomes = append(dayResult.Outcomes, skipped...)
		records = append(records, raceRecords...)
	}

	outcomes, err := r.uploader.Upload(ctx, records)
	dayResult.Outcomes = append(dayResult.Outcomes, outcomes...)
	dayResult.Err = err

	r.metrics.RecordOutcomes(ctx, outcomes)
	r.metrics.RecordUploadDuration(ctx, day.Venue, r.clock().Sub(started))
	observability.Log().Info("day processed",
		observability.Field{Key: "date", Value: day.Date.String()},
		observability.Field{Key: "venue", Value: string(day.Venue)},
		observability.Field{Key: "records", Value: len(records)},
	)
	return dayResult
}
