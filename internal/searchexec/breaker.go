package searchexec

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	OpenPeriod       time.Duration
	ReadyToTripRatio float64
}

// BreakerExecutor stops sending queries to an engine that keeps failing.
// Configuration errors do not count as engine failures.
type BreakerExecutor struct {
	next Executor
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerExecutor wraps next with a circuit breaker.
func NewBreakerExecutor(next Executor, cfg BreakerConfig, log *logger.Logger) *BreakerExecutor {
	if log == nil {
		log = logger.Default()
	}

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsConfiguration(err) || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Search circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerExecutor{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Search implements Executor.
func (b *BreakerExecutor) Search(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Search(ctx, req)
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Wrap(errors.CodeUnavailable, "search engine circuit open", err)
		}
		return nil, err
	}
	return resp.(*Response), nil
}

// State returns the breaker state name.
func (b *BreakerExecutor) State() string {
	return b.cb.State().String()
}
