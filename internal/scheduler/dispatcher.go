package scheduler

import (
	"context"
	"sync"

	"github.com/ricesearch/search-relevance/internal/bus"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// Runner executes one triggered run.
type Runner interface {
	Run(ctx context.Context, params model.JobParameters) error
}

// Dispatcher hands job triggers from the bus to the runner. Every run gets
// its own goroutine so a long run never delays other triggers.
type Dispatcher struct {
	bus    bus.Bus
	runner Runner
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	received int
	arrived  chan struct{}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(b bus.Bus, runner Runner, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{bus: b, runner: runner, log: log, ctx: ctx, cancel: cancel, arrived: make(chan struct{})}
}

// Start subscribes to the trigger topic.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.bus == nil || d.runner == nil {
		return errors.ConfigurationError("dispatcher needs a bus and a runner")
	}
	return d.bus.Subscribe(ctx, bus.TopicJobTrigger, d.handle)
}

func (d *Dispatcher) handle(ctx context.Context, event bus.Event) error {
	defer d.arrive()

	var params model.JobParameters
	if err := event.Decode(&params); err != nil {
		return errors.ValidationError(err.Error())
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log := d.log.WithJob(params.JobID)
		log.Debug("Job trigger received", "event_id", event.ID, "experiment_id", params.ExperimentID)
		if err := d.runner.Run(d.ctx, params); err != nil {
			log.WithError(err).Warn("Triggered run failed", "code", errors.Code(err))
		}
	}()
	return nil
}

func (d *Dispatcher) arrive() {
	d.mu.Lock()
	d.received++
	close(d.arrived)
	d.arrived = make(chan struct{})
	d.mu.Unlock()
}

// AwaitTriggers blocks until n trigger events have reached the dispatcher
// since it started. Bus delivery is asynchronous, so a publisher that wants
// to Shutdown after its own triggers calls this first.
func (d *Dispatcher) AwaitTriggers(ctx context.Context, n int) error {
	for {
		d.mu.Lock()
		got, arrived := d.received, d.arrived
		d.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-arrived:
		case <-ctx.Done():
			return errors.Wrap(errors.CodeTimeout, "waiting for job triggers", ctx.Err())
		}
	}
}

// Shutdown waits for in-flight runs until ctx expires, then cancels them.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return errors.Wrap(errors.CodeTimeout, "waiting for triggered runs", ctx.Err())
	}
}
