// Package bus carries job triggers and experiment lifecycle events between
// the scheduler, the job runner and external listeners.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "experiment.completed").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events, e.g. a trigger and the
	// experiment event it caused.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics.
const (
	TopicJobTrigger          = "experiment.job.trigger"
	TopicExperimentCompleted = "experiment.completed"
	TopicExperimentFailed    = "experiment.failed"
)

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Decode unmarshals the payload into v. Payloads that crossed a broker
// arrive as generic JSON values and are re-encoded first.
func (e Event) Decode(v any) error {
	var data []byte
	switch p := e.Payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		var err error
		if data, err = json.Marshal(p); err != nil {
			return fmt.Errorf("encoding payload of event %s: %w", e.ID, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding payload of event %s: %w", e.ID, err)
	}
	return nil
}

// ExperimentEvent is the payload of experiment completion and failure events.
type ExperimentEvent struct {
	ExperimentID string `json:"experimentId"`
	JobID        string `json:"jobId,omitempty"`
	RunID        string `json:"runId,omitempty"`
	Type         string `json:"experimentType"`
	Status       string `json:"status"`
	Records      int    `json:"records"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}
