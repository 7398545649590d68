package experiment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// join is the fan-in barrier of one fan-out stage. Exactly one outcome is
// delivered on done: nil once every branch succeeded, or the error of the
// first branch to fail. Failed branches never decrement pending, so the
// counter only reaches zero when no branch failed.
type join struct {
	pending atomic.Int64
	failed  atomic.Bool
	settled atomic.Bool
	done    chan error
}

func newJoin(branches int) *join {
	j := &join{done: make(chan error, 1)}
	j.pending.Store(int64(branches))
	if branches == 0 {
		j.settled.Store(true)
		j.done <- nil
	}
	return j
}

// succeed records a successful branch.
func (j *join) succeed() {
	if j.pending.Add(-1) == 0 && j.settled.CompareAndSwap(false, true) {
		j.done <- nil
	}
}

// fail records a failed branch. Only the first failure is delivered; it
// reports whether this call won.
func (j *join) fail(err error) bool {
	if !j.failed.CompareAndSwap(false, true) {
		return false
	}
	if !j.settled.CompareAndSwap(false, true) {
		return false
	}
	j.done <- err
	return true
}

// complete routes a branch outcome.
func (j *join) complete(err error) {
	if err != nil {
		j.fail(err)
		return
	}
	j.succeed()
}

// aborted reports whether a branch already failed.
func (j *join) aborted() bool {
	return j.failed.Load()
}

// wait blocks until the outcome is known or ctx expires. An expired
// context counts as a failure unless the stage settled first.
func (j *join) wait(ctx context.Context, stage string) error {
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
	}

	j.fail(errors.Wrap(errors.CodeTimeout, stage+" did not finish within the run deadline", ctx.Err()))
	return <-j.done
}

// aggregator collects result records from concurrent branches. Records
// are kept in completion order.
type aggregator struct {
	mu      sync.Mutex
	join    *join
	records []model.ResultRecord
}

func newAggregator(j *join) *aggregator {
	return &aggregator{join: j}
}

// add appends records unless a branch already failed. It reports whether
// the records were kept.
func (a *aggregator) add(records ...model.ResultRecord) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.join.aborted() {
		return false
	}
	a.records = append(a.records, records...)
	return true
}

// snapshot returns the collected records. Call it only after the join
// delivered success.
func (a *aggregator) snapshot() []model.ResultRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.ResultRecord, len(a.records))
	copy(out, a.records)
	return out
}
