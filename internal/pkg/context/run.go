// Package context carries per-run values through request contexts.
package context

import (
	"context"

	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// WithRunID tags ctx with the id of the experiment run it belongs to.
// Loggers derived with logger.WithContext pick it up.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, logger.RunIDKey, runID)
}

// RunID returns the run id carried by ctx, or "" outside a run.
func RunID(ctx context.Context) string {
	if runID, ok := ctx.Value(logger.RunIDKey).(string); ok {
		return runID
	}
	return ""
}
