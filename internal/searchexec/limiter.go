package searchexec

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// LimitedExecutor caps the request rate sent to each index, so one large
// experiment cannot flood the engine.
type LimitedExecutor struct {
	next     Executor
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLimitedExecutor wraps next with a per-index token bucket.
func NewLimitedExecutor(next Executor, requestsPerSecond float64, burst int) *LimitedExecutor {
	if burst < 1 {
		burst = 1
	}
	return &LimitedExecutor{
		next:     next,
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (l *LimitedExecutor) getLimiter(index string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[index]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[index] = limiter
	}
	return limiter
}

// Search implements Executor. It waits for a token or for ctx to end.
func (l *LimitedExecutor) Search(ctx context.Context, req Request) (*Response, error) {
	if err := l.getLimiter(req.Config.Index).Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.CodeTimeout, "waiting for search rate limit", err)
	}
	return l.next.Search(ctx, req)
}
