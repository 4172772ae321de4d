// Package reconcile pushes normalized records into a sink with bounded
// retries and create/update reconciliation.
package reconcile

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hkracing/racesync/config"
	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/observability"
)

// Policy bounds retry behaviour for one sink operation. Only transient
// failures are retried; validation and fatal sink errors surface immediately.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration

	// sleep is swappable so tests can run retries without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy derives a retry policy from runner settings.
func NewPolicy(cfg config.RunnerSettings) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BaseBackoff,
		Max:         cfg.MaxBackoff,
		sleep:       sleepContext,
	}
}

// WithSleep returns a copy of the policy using the given sleeper.
func (p Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// Do runs op until it succeeds, fails terminally, or exhausts MaxAttempts.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	backoffCfg := backoff.NewExponentialBackOff()
	if p.Base > 0 {
		backoffCfg.InitialInterval = p.Base
	}
	if p.Max > 0 {
		backoffCfg.MaxInterval = p.Max
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.New("reconcile.retry", errs.CodeTransient,
				errs.WithMessage("run cancelled"), errs.WithCause(err))
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		wait := backoffCfg.NextBackOff()
		if wait == backoff.Stop {
			wait = p.Max
		}
		observability.Log().Debug("retrying sink operation",
			observability.Field{Key: "attempt", Value: attempt},
			observability.Field{Key: "wait", Value: wait.String()},
			observability.Field{Key: "error", Value: lastErr.Error()},
		)
		if err := sleep(ctx, wait); err != nil {
			return errs.New("reconcile.retry", errs.CodeTransient,
				errs.WithMessage("run cancelled during backoff"), errs.WithCause(err))
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
