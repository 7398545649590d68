package bus

import (
	"context"

	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// LoggedBus wraps another Bus and appends every published event to an
// audit log before delivering it.
type LoggedBus struct {
	inner       Bus
	eventLogger *EventLogger
	log         *logger.Logger
}

// NewLoggedBus creates a logged bus around inner.
func NewLoggedBus(inner Bus, eventLogger *EventLogger, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedBus{
		inner:       inner,
		eventLogger: eventLogger,
		log:         log,
	}
}

// Publish records the event and then delegates to the inner bus. A failed
// audit write does not block delivery.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.eventLogger.Log(topic, event); err != nil {
		b.log.WithError(err).Warn("Failed to log event to disk", "topic", topic, "event_id", event.ID)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *LoggedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the inner bus first so in-flight handlers can still publish,
// then the event log.
func (b *LoggedBus) Close() error {
	err := b.inner.Close()
	if logErr := b.eventLogger.Close(); logErr != nil {
		b.log.WithError(logErr).Warn("Failed to close event logger")
	}
	return err
}

// Events exposes the audit log.
func (b *LoggedBus) Events() *EventLogger {
	return b.eventLogger
}
