// Package pool provides the shared bounded worker pool that runs every
// lookup and evaluation dispatched by the job runner.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// Task is a unit of work run on the pool.
type Task func(ctx context.Context) error

// Continuation receives a task's outcome. It runs on the worker goroutine
// that executed the task.
type Continuation func(err error)

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem     *semaphore.Weighted
	size    int64
	wg      sync.WaitGroup
	closed  atomic.Bool
	running atomic.Int64
	log     *logger.Logger
}

// New creates a pool running at most size tasks at once.
func New(size int, log *logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
		log:  log,
	}
}

// Go schedules task and returns immediately. done is always called exactly
// once: with the task's error, with the context error if no worker slot
// became available, or with an INTERNAL_ERROR if the task panicked.
func (p *Pool) Go(ctx context.Context, task Task, done Continuation) {
	if done == nil {
		done = func(error) {}
	}
	if p.closed.Load() {
		done(errors.New(errors.CodeUnavailable, "worker pool is closed"))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			done(err)
			return
		}
		p.running.Add(1)
		err := p.run(ctx, task)
		p.running.Add(-1)
		p.sem.Release(1)

		done(err)
	}()
}

func (p *Pool) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Task panicked", "panic", r, "stack", string(debug.Stack()))
			err = errors.InternalError("task panicked", fmt.Errorf("%v", r))
		}
	}()
	return task(ctx)
}

// Running returns the number of tasks currently holding a worker slot.
func (p *Pool) Running() int64 {
	return p.running.Load()
}

// Size returns the pool's concurrency limit.
func (p *Pool) Size() int64 {
	return p.size
}

// Close stops accepting tasks and waits for scheduled ones to finish or
// for ctx to expire.
func (p *Pool) Close(ctx context.Context) error {
	p.closed.Store(true)

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.CodeTimeout, "waiting for pool tasks", ctx.Err())
	}
}
