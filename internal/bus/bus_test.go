package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for events")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicJobTrigger, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), TopicJobTrigger, NewEvent("trigger", "test", nil)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitGroup(t, &wg)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), TopicExperimentCompleted, func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(context.Background(), TopicExperimentCompleted, func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return nil
	})

	wg.Add(2)
	bus.Publish(context.Background(), TopicExperimentCompleted, NewEvent("done", "test", nil))
	waitGroup(t, &wg)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	if err := bus.Publish(context.Background(), "nobody.listens", NewEvent("x", "test", nil)); err != nil {
		t.Errorf("Publish() without subscribers error = %v", err)
	}
}

func TestMemoryBus_HandlerOutlivesPublisherContext(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	got := make(chan error, 1)
	bus.Subscribe(context.Background(), TopicJobTrigger, func(ctx context.Context, event Event) error {
		time.Sleep(10 * time.Millisecond)
		got <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, TopicJobTrigger, NewEvent("trigger", "test", nil))
	cancel()

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("handler context error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())

	var finished atomic.Bool
	bus.Subscribe(context.Background(), TopicJobTrigger, func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	bus.Publish(context.Background(), TopicJobTrigger, NewEvent("trigger", "test", nil))

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() should wait for in-flight handlers")
	}

	err := bus.Publish(context.Background(), TopicJobTrigger, Event{})
	if errors.Code(err) != errors.CodeUnavailable {
		t.Errorf("Publish() after close error = %v, want SERVICE_UNAVAILABLE", err)
	}
	if err := bus.Subscribe(context.Background(), TopicJobTrigger, nil); err == nil {
		t.Error("Subscribe() after close should fail")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestEventDecode(t *testing.T) {
	type payload struct {
		ExperimentID string `json:"experimentId"`
		Size         int    `json:"size"`
	}

	tests := []struct {
		name  string
		event Event
	}{
		{"typed", Event{Payload: payload{ExperimentID: "e1", Size: 5}}},
		{"decoded JSON", Event{Payload: map[string]any{"experimentId": "e1", "size": float64(5)}}},
		{"raw bytes", Event{Payload: []byte(`{"experimentId":"e1","size":5}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			if err := tt.event.Decode(&got); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.ExperimentID != "e1" || got.Size != 5 {
				t.Errorf("Decode() = %+v", got)
			}
		})
	}

	var got payload
	if err := (Event{Payload: []byte("{")}).Decode(&got); err == nil {
		t.Error("invalid payload should fail")
	}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent("experiment.completed", "runner", nil)
	b := NewEvent("experiment.completed", "runner", nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event ids = %q/%q, want unique", a.ID, b.ID)
	}
	if a.Timestamp == 0 {
		t.Error("timestamp should be set")
	}
}

func TestNewBus(t *testing.T) {
	b, err := NewBus(config.BusConfig{Type: "memory"}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	if _, ok := b.(*MemoryBus); !ok {
		t.Errorf("NewBus() = %T, want *MemoryBus", b)
	}
	b.Close()

	logged, err := NewBus(config.BusConfig{Type: "memory", EventLogEnabled: true, EventLogPath: t.TempDir() + "/events.jsonl"}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	if _, ok := logged.(*LoggedBus); !ok {
		t.Errorf("NewBus() = %T, want *LoggedBus", logged)
	}
	logged.Close()

	if _, err := NewBus(config.BusConfig{Type: "kafka"}, logger.Discard()); err == nil {
		t.Error("kafka without brokers should fail")
	}
	if _, err := NewBus(config.BusConfig{Type: "nats"}, logger.Discard()); err == nil {
		t.Error("unknown bus type should fail")
	}
}
