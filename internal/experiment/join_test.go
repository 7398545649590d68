package experiment

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

func TestJoinAllSucceed(t *testing.T) {
	j := newJoin(3)
	for i := 0; i < 3; i++ {
		go j.succeed()
	}
	if err := j.wait(context.Background(), "test"); err != nil {
		t.Errorf("wait() = %v, want nil", err)
	}
}

func TestJoinZeroBranches(t *testing.T) {
	if err := newJoin(0).wait(context.Background(), "test"); err != nil {
		t.Errorf("wait() = %v, want nil", err)
	}
}

func TestJoinFirstFailureWins(t *testing.T) {
	j := newJoin(3)
	first := errors.EvaluationError("first", nil)

	if !j.fail(first) {
		t.Fatal("first fail() should win")
	}
	if j.fail(errors.EvaluationError("second", nil)) {
		t.Error("second fail() should lose")
	}
	j.succeed()
	j.succeed()
	j.succeed()

	if err := j.wait(context.Background(), "test"); err != first {
		t.Errorf("wait() = %v, want the first failure", err)
	}
	select {
	case extra := <-j.done:
		t.Errorf("second outcome delivered: %v", extra)
	default:
	}
}

func TestJoinDeadline(t *testing.T) {
	j := newJoin(2)
	j.succeed()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := j.wait(ctx, "query evaluation")
	if errors.Code(err) != errors.CodeTimeout {
		t.Errorf("wait() = %v, want TIMEOUT", err)
	}
	if !j.aborted() {
		t.Error("deadline should abort the stage")
	}

	// A late branch must not block on the settled channel.
	finished := make(chan struct{})
	go func() {
		j.succeed()
		j.fail(errors.EvaluationError("late", nil))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("late branch blocked")
	}
}

// Branches complete in random order and a random subset fails; every trial
// must settle exactly once with the matching outcome.
func TestJoinRandomizedTrials(t *testing.T) {
	for trial := 0; trial < 200; trial++ {
		n := 1 + rand.IntN(16)
		failures := 0
		if rand.IntN(2) == 0 {
			failures = 1 + rand.IntN(n)
		}

		j := newJoin(n)
		agg := newAggregator(j)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			shouldFail := i < failures
			go func() {
				defer wg.Done()
				time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
				if shouldFail {
					j.complete(errors.EvaluationError("boom", nil))
					return
				}
				agg.add(model.ResultRecord{"i": i})
				j.complete(nil)
			}()
		}

		err := j.wait(context.Background(), "test")
		wg.Wait()

		if failures > 0 && err == nil {
			t.Fatalf("trial %d: %d failures but join succeeded", trial, failures)
		}
		if failures == 0 {
			if err != nil {
				t.Fatalf("trial %d: unexpected failure %v", trial, err)
			}
			if got := len(agg.snapshot()); got != n {
				t.Fatalf("trial %d: records = %d, want %d", trial, got, n)
			}
		}
		select {
		case extra := <-j.done:
			t.Fatalf("trial %d: second outcome %v", trial, extra)
		default:
		}
	}
}

func TestAggregatorDropsAfterFailure(t *testing.T) {
	j := newJoin(2)
	agg := newAggregator(j)

	if !agg.add(model.ResultRecord{"a": 1}) {
		t.Fatal("add() before failure should keep records")
	}
	j.fail(errors.EvaluationError("boom", nil))
	if agg.add(model.ResultRecord{"b": 2}) {
		t.Error("add() after failure should drop records")
	}
	if got := len(agg.snapshot()); got != 1 {
		t.Errorf("snapshot = %d records, want 1", got)
	}
}
