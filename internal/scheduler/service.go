// Package scheduler stores recurring experiment runs and turns them into
// job triggers on the bus.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/search-relevance/internal/bus"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// DefaultJobName names jobs posted without one.
const DefaultJobName = "experiment-parameters"

// JobStore persists scheduled jobs.
type JobStore interface {
	Get(ctx context.Context, id string) (*model.JobParameters, error)
	Put(ctx context.Context, id string, job *model.JobParameters) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.JobParameters, error)
}

// ExperimentLookup confirms that a scheduled experiment exists.
type ExperimentLookup interface {
	Get(ctx context.Context, id string) (*model.Experiment, error)
}

// Service manages scheduled jobs.
type Service struct {
	jobs        JobStore
	experiments ExperimentLookup
	bus         bus.Bus
	log         *logger.Logger
	now         func() time.Time

	// DefaultLockDuration applies to jobs added without one. Whole seconds.
	DefaultLockDuration time.Duration

	// Disabled refuses adding, resuming and triggering jobs. Listing and
	// deleting stay available.
	Disabled bool
}

// NewService creates a scheduler service. experiments and b may be nil;
// without experiments posted ids are not checked, without a bus Trigger
// fails.
func NewService(jobs JobStore, experiments ExperimentLookup, b bus.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		jobs:        jobs,
		experiments: experiments,
		bus:         b,
		log:         log,
		now:         time.Now,

		DefaultLockDuration: time.Duration(model.DefaultLockDurationSeconds) * time.Second,
	}
}

// Post schedules an existing experiment to re-run every interval.
func (s *Service) Post(ctx context.Context, experimentID, interval string) (*model.JobParameters, error) {
	if experimentID == "" {
		return nil, errors.ValidationError("experiment id is required")
	}
	return s.Add(ctx, model.JobParameters{
		ExperimentID: experimentID,
		Interval:     interval,
	})
}

// Add stores a job definition. Missing fields get defaults: a fresh id,
// the default name and lock duration, and enabled state.
func (s *Service) Add(ctx context.Context, job model.JobParameters) (*model.JobParameters, error) {
	if s.Disabled {
		return nil, errors.DisabledError("scheduling experiments")
	}
	if _, err := job.Period(); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	if err := job.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	if !job.Replay() && s.experiments != nil {
		if _, err := s.experiments.Get(ctx, job.ExperimentID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Name == "" {
		job.Name = DefaultJobName
	}
	if job.LockDurationSeconds == 0 {
		job.LockDurationSeconds = int64(s.DefaultLockDuration / time.Second)
	}
	job.Enabled = true
	job.EnabledTime = now
	job.LastUpdateTime = now

	if err := s.jobs.Put(ctx, job.JobID, &job); err != nil {
		return nil, fmt.Errorf("saving scheduled job: %w", err)
	}
	s.log.Info("Scheduled job created", "job_id", job.JobID, "experiment_id", job.ExperimentID, "schedule", job.Interval)
	return &job, nil
}

// Delete removes a scheduled job.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.jobs.Get(ctx, id); err != nil {
		return err
	}
	if err := s.jobs.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting scheduled job %s: %w", id, err)
	}
	s.log.Info("Scheduled job deleted", "job_id", id)
	return nil
}

// SetEnabled pauses or resumes a job.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (*model.JobParameters, error) {
	if enabled && s.Disabled {
		return nil, errors.DisabledError("resuming scheduled jobs")
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if enabled && !job.Enabled {
		job.EnabledTime = now
	}
	job.Enabled = enabled
	job.LastUpdateTime = now
	if err := s.jobs.Put(ctx, id, job); err != nil {
		return nil, fmt.Errorf("saving scheduled job: %w", err)
	}
	return job, nil
}

// List returns every scheduled job.
func (s *Service) List(ctx context.Context) ([]*model.JobParameters, error) {
	return s.jobs.List(ctx)
}

// Trigger publishes a one-off run of a stored job.
func (s *Service) Trigger(ctx context.Context, id string) error {
	if s.Disabled {
		return errors.DisabledError("triggering scheduled jobs")
	}
	if s.bus == nil {
		return errors.ConfigurationError("scheduler has no bus")
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	return publishTrigger(ctx, s.bus, job)
}

func publishTrigger(ctx context.Context, b bus.Bus, job *model.JobParameters) error {
	event := bus.NewEvent(bus.TopicJobTrigger, "scheduler", job)
	event.CorrelationID = job.JobID
	return b.Publish(ctx, bus.TopicJobTrigger, event)
}
