package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ricesearch/search-relevance/internal/bus"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// Ticker publishes a trigger for every enabled job each time its interval
// elapses. A job's jitter delays each firing by a random fraction of its
// interval.
type Ticker struct {
	jobs  JobStore
	bus   bus.Bus
	every time.Duration
	log   *logger.Logger

	mu     sync.Mutex
	next   map[string]time.Time
	jitter func(max time.Duration) time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewTicker creates a ticker that checks the job list every poll interval.
func NewTicker(jobs JobStore, b bus.Bus, every time.Duration, log *logger.Logger) *Ticker {
	if every <= 0 {
		every = time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	return &Ticker{
		jobs:  jobs,
		bus:   b,
		every: every,
		log:   log,
		next:  make(map[string]time.Time),
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return rand.N(max)
		},
	}
}

// Start runs the poll loop until Stop or ctx is done.
func (t *Ticker) Start(ctx context.Context) {
	t.stop = make(chan struct{})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		tick := time.NewTicker(t.every)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case now := <-tick.C:
				if _, err := t.Tick(ctx, now); err != nil {
					t.log.WithError(err).Warn("Scheduler tick failed")
				}
			}
		}
	}()
}

// Stop ends the poll loop.
func (t *Ticker) Stop() {
	if t.stop != nil {
		close(t.stop)
		t.wg.Wait()
		t.stop = nil
	}
}

// Tick publishes the triggers due at now and returns how many it sent.
func (t *Ticker) Tick(ctx context.Context, now time.Time) (int, error) {
	jobs, err := t.jobs.List(ctx)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	live := make(map[string]bool, len(jobs))
	fired := 0
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		period, err := job.Period()
		if err != nil {
			t.log.WithError(err).Warn("Skipping job with invalid schedule", "job_id", job.JobID)
			continue
		}
		live[job.JobID] = true

		due, ok := t.next[job.JobID]
		if !ok {
			start := job.EnabledTime
			if start.IsZero() {
				start = now
			}
			due = start.Add(period + t.spread(period, job.Jitter))
			t.next[job.JobID] = due
		}
		if now.Before(due) {
			continue
		}

		if err := publishTrigger(ctx, t.bus, job); err != nil {
			t.log.WithError(err).Warn("Failed to publish job trigger", "job_id", job.JobID)
			continue
		}
		fired++
		t.next[job.JobID] = now.Add(period + t.spread(period, job.Jitter))
		t.log.Debug("Job triggered", "job_id", job.JobID, "next", t.next[job.JobID])
	}

	for id := range t.next {
		if !live[id] {
			delete(t.next, id)
		}
	}
	return fired, nil
}

func (t *Ticker) spread(period time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return 0
	}
	return t.jitter(time.Duration(float64(period) * jitter))
}
