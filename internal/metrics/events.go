package metrics

import (
	"context"
	"time"

	"github.com/ricesearch/search-relevance/internal/bus"
)

// EventSubscriber updates experiment metrics from bus events, so runs on
// any process sharing the bus are counted.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates an event subscriber.
func NewEventSubscriber(m *Metrics, b bus.Bus) *EventSubscriber {
	return &EventSubscriber{metrics: m, bus: b}
}

// Subscribe registers for experiment outcomes and job triggers.
func (es *EventSubscriber) Subscribe(ctx context.Context) error {
	for _, topic := range []string{bus.TopicExperimentCompleted, bus.TopicExperimentFailed} {
		if err := es.bus.Subscribe(ctx, topic, es.handleExperiment); err != nil {
			return err
		}
	}
	return es.bus.Subscribe(ctx, bus.TopicJobTrigger, es.countOnly)
}

func (es *EventSubscriber) handleExperiment(ctx context.Context, event bus.Event) error {
	es.metrics.BusEvents.WithLabels(event.Type).Inc()

	var e bus.ExperimentEvent
	if err := event.Decode(&e); err != nil {
		return err
	}
	es.metrics.RecordExperiment(e.Type, e.Status, time.Duration(e.DurationMs)*time.Millisecond)
	return nil
}

func (es *EventSubscriber) countOnly(ctx context.Context, event bus.Event) error {
	es.metrics.BusEvents.WithLabels(event.Type).Inc()
	return nil
}
