package context

import (
	"context"
	"testing"
)

func TestRunID(t *testing.T) {
	if got := RunID(context.Background()); got != "" {
		t.Errorf("RunID(background) = %q, want empty", got)
	}

	ctx := WithRunID(context.Background(), "run-1")
	if got := RunID(ctx); got != "run-1" {
		t.Errorf("RunID() = %q, want run-1", got)
	}

	inner := WithRunID(ctx, "run-2")
	if got := RunID(inner); got != "run-2" {
		t.Errorf("nested RunID() = %q, want run-2", got)
	}
}
