package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/observability"
	"github.com/hkracing/racesync/internal/route"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

// Uploader writes records to a sink, one upsert per logical key. Writes to
// distinct keys run in parallel; writes to the same key stay serialized so a
// record never races its own replacement.
type Uploader struct {
	store   sink.Sink
	limiter *rate.Limiter
	policy  Policy
	workers int
	clock   func() time.Time
}

// NewUploader constructs an Uploader. The limiter is shared across workers so
// the destination sees one global write rate.
func NewUploader(store sink.Sink, limiter *rate.Limiter, policy Policy, workers int) *Uploader {
	if workers <= 0 {
		workers = 1
	}
	return &Uploader{
		store:   store,
		limiter: limiter,
		policy:  policy,
		workers: workers,
		clock:   time.Now,
	}
}

// WithClock overrides the outcome timestamp source.
func (u *Uploader) WithClock(clock func() time.Time) *Uploader {
	u.clock = clock
	return u
}

type uploadJob struct {
	index       int
	record      schema.Record
	destination route.Destination
}

// Upload pushes every record and returns one outcome per record, in input
// order. A fatal sink error cancels the remaining work and is returned; all
// other failures are confined to their record's outcome.
func (u *Uploader) Upload(ctx context.Context, records []schema.Record) ([]schema.UploadOutcome, error) {
	outcomes := make([]schema.UploadOutcome, len(records))

	// group jobs by destination key so same-key writes stay ordered
	groups := make(map[string][]uploadJob)
	var groupOrder []string
	for i, record := range records {
		dest, err := route.Route(record)
		if err != nil {
			outcomes[i] = schema.UploadOutcome{
				Race:        record.Race,
				Kind:        record.Kind,
				AttemptedAt: u.clock(),
				Result:      schema.ResultFailed,
				Reason:      "unroutable record",
				Err:         err,
			}
			continue
		}
		groupKey := dest.Collection + "/" + dest.Key
		if _, seen := groups[groupKey]; !seen {
			groupOrder = append(groupOrder, groupKey)
		}
		groups[groupKey] = append(groups[groupKey], uploadJob{index: i, record: record, destination: dest})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerLimit := u.workers
	if workerLimit > len(groupOrder) && len(groupOrder) > 0 {
		workerLimit = len(groupOrder)
	}

	var mu sync.Mutex
	var fatal error

	p := pool.New().WithMaxGoroutines(workerLimit)
	for _, groupKey := range groupOrder {
		jobs := groups[groupKey]
		p.Go(func() {
			for _, job := range jobs {
				outcome := u.push(runCtx, job)
				outcomes[job.index] = outcome
				if outcome.Err != nil && errs.IsFatalSink(outcome.Err) {
					mu.Lock()
					if fatal == nil {
						fatal = outcome.Err
					}
					mu.Unlock()
					cancel()
					return
				}
			}
		})
	}
	p.Wait()

	if fatal != nil {
		observability.Log().Error("upload aborted on fatal sink error",
			observability.Field{Key: "error", Value: fatal.Error()},
		)
		return outcomes, fatal
	}
	return outcomes, nil
}

func (u *Uploader) push(ctx context.Context, job uploadJob) schema.UploadOutcome {
	outcome := schema.UploadOutcome{
		Race:        job.record.Race,
		Kind:        job.record.Kind,
		Collection:  job.destination.Collection,
		Key:         job.destination.Key,
		AttemptedAt: u.clock(),
	}
	if err := ctx.Err(); err != nil {
		outcome.Result = schema.ResultSkipped
		outcome.Reason = "run cancelled"
		return outcome
	}

	document := sink.Document(job.record, job.destination.Key)
	var result schema.ResultKind
	err := u.policy.Do(ctx, func(opCtx context.Context) error {
		if u.limiter != nil {
			if err := u.limiter.Wait(opCtx); err != nil {
				return errs.New("reconcile.upload", errs.CodeTransient,
					errs.WithMessage("rate limiter interrupted"), errs.WithCause(err))
			}
		}
		var opErr error
		result, opErr = u.store.Upsert(opCtx, job.destination.Collection, job.destination.Key, document)
		return opErr
	})
	if err != nil {
		outcome.Result = schema.ResultFailed
		outcome.Reason = "upsert failed"
		outcome.Err = err
		return outcome
	}

	outcome.Result = result
	observability.Log().Debug("record reconciled",
		observability.Field{Key: "collection", Value: outcome.Collection},
		observability.Field{Key: "key", Value: outcome.Key},
		observability.Field{Key: "result", Value: string(result)},
	)
	return outcome
}
