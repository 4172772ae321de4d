// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/hkracing/racesync/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Pool is a bounded worker pool. Submit blocks when the queue is full so
// callers are throttled instead of dropped. The jobs channel is never closed;
// workers exit once the pool is cancelled and the queue is drained, so a
// Submit racing Close can never panic.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, queue),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the provided task, blocking while the queue is saturated.
// The mutex makes Submit and Close mutually exclusive: once Close has set the
// flag no further task can be accepted.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	p.wg.Add(1)
	select {
	case <-ctx.Done():
		p.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	}
}

// Close stops accepting new tasks. Tasks already queued still run.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cancel()
	})
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for {
		select {
		case j := <-p.jobs:
			p.run(j)
		case <-p.ctx.Done():
			// every accepted task must run before the worker exits
			for {
				select {
				case j := <-p.jobs:
					p.run(j)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(j job) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			// keep the worker alive; task-level reporting is the caller's job
			_ = r
		}
	}()
	ctx := j.ctx
	if ctx == nil {
		ctx = p.ctx
	}
	if err := j.fn(ctx); err != nil {
		// task errors are collected by the submitting caller
		_ = err
	}
}
