package pool

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(4, logger.Discard())

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Go(context.Background(), func(ctx context.Context) error {
			count.Add(1)
			return nil
		}, func(err error) {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			wg.Done()
		})
	}
	wg.Wait()

	if count.Load() != 20 {
		t.Errorf("count = %d, want 20", count.Load())
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2, logger.Discard())

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Go(context.Background(), func(ctx context.Context) error {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return nil
		}, func(error) { wg.Done() })
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestPoolDeliversErrors(t *testing.T) {
	p := New(1, logger.Discard())
	want := stderrors.New("boom")

	got := make(chan error, 1)
	p.Go(context.Background(), func(ctx context.Context) error { return want }, func(err error) { got <- err })

	if err := <-got; !stderrors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	p := New(1, logger.Discard())

	got := make(chan error, 1)
	p.Go(context.Background(), func(ctx context.Context) error { panic("bad evaluator") }, func(err error) { got <- err })

	err := <-got
	if errors.Code(err) != errors.CodeInternal {
		t.Errorf("Code(err) = %q, want %q", errors.Code(err), errors.CodeInternal)
	}
}

func TestPoolCanceledBeforeSlot(t *testing.T) {
	p := New(1, logger.Discard())

	started := make(chan struct{})
	release := make(chan struct{})
	p.Go(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	p.Go(ctx, func(ctx context.Context) error { return nil }, func(err error) { got <- err })
	cancel()

	if err := <-got; !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	close(release)
}

func TestPoolClose(t *testing.T) {
	p := New(2, logger.Discard())

	var finished atomic.Bool
	p.Go(context.Background(), func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return nil
	}, nil)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() returned before in-flight task finished")
	}

	got := make(chan error, 1)
	p.Go(context.Background(), func(ctx context.Context) error { return nil }, func(err error) { got <- err })
	if err := <-got; errors.Code(err) != errors.CodeUnavailable {
		t.Errorf("Go() after Close() = %v, want SERVICE_UNAVAILABLE", err)
	}
}
