package metrics

import (
	"context"
	"time"

	"github.com/ricesearch/search-relevance/internal/searchexec"
)

// InstrumentedExecutor records latency and outcome of every search.
type InstrumentedExecutor struct {
	next    searchexec.Executor
	metrics *Metrics
}

// InstrumentExecutor wraps next.
func InstrumentExecutor(next searchexec.Executor, m *Metrics) *InstrumentedExecutor {
	return &InstrumentedExecutor{next: next, metrics: m}
}

// Search implements searchexec.Executor.
func (e *InstrumentedExecutor) Search(ctx context.Context, req searchexec.Request) (*searchexec.Response, error) {
	start := time.Now()
	resp, err := e.next.Search(ctx, req)
	e.metrics.RecordSearch(time.Since(start), err)
	return resp, err
}
