package searchexec

import (
	"context"
	"fmt"
	"time"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/qdrant"
)

// New builds the executor chain selected by configuration: engine, then
// rate limiter, then circuit breaker. The returned close function releases
// engine connections.
func New(search config.SearchConfig, qcfg config.QdrantConfig, log *logger.Logger) (Executor, func() error, error) {
	var (
		exec    Executor
		closeFn = func() error { return nil }
	)

	switch search.Engine {
	case "http", "":
		exec = NewHTTPExecutor(HTTPConfig{BaseURL: search.URL, Timeout: search.Timeout})
	case "qdrant":
		client, err := qdrant.Open(qcfg)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			log.WithError(err).Warn("Qdrant not reachable yet", "host", qcfg.Host, "port", qcfg.Port)
		}
		cancel()
		exec = NewQdrantExecutor(client)
		closeFn = client.Close
	default:
		return nil, nil, fmt.Errorf("unknown search engine: %s", search.Engine)
	}

	if search.RateLimit > 0 {
		exec = NewLimitedExecutor(exec, search.RateLimit, search.Burst)
	}

	if search.BreakerEnabled {
		exec = NewBreakerExecutor(exec, BreakerConfig{
			Name:             "search-" + search.Engine,
			MaxRequests:      1,
			OpenPeriod:       search.BreakerOpenPeriod,
			ReadyToTripRatio: search.BreakerRatio,
		}, log)
	}

	return exec, closeFn, nil
}
