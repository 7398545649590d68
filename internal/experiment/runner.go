// Package experiment runs experiments: it resolves the experiment, its
// query set and its search configurations, evaluates every query on the
// shared worker pool and persists a single terminal status.
package experiment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/search-relevance/internal/bus"
	"github.com/ricesearch/search-relevance/internal/evaluation"
	"github.com/ricesearch/search-relevance/internal/judgment"
	"github.com/ricesearch/search-relevance/internal/lock"
	"github.com/ricesearch/search-relevance/internal/model"
	runctx "github.com/ricesearch/search-relevance/internal/pkg/context"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/pool"
)

// DefaultMaxQuerySetSize bounds the number of queries evaluated per run.
const DefaultMaxQuerySetSize = 1000

// ExperimentStore reads and writes experiments.
type ExperimentStore interface {
	Get(ctx context.Context, id string) (*model.Experiment, error)
	Put(ctx context.Context, id string, e *model.Experiment) error
}

// QuerySetStore reads query sets.
type QuerySetStore interface {
	Get(ctx context.Context, id string) (*model.QuerySet, error)
}

// ConfigurationStore reads search configurations.
type ConfigurationStore interface {
	Get(ctx context.Context, id string) (*model.SearchConfiguration, error)
}

// EvaluationResultStore lists and deletes per-query evaluation documents.
type EvaluationResultStore interface {
	List(ctx context.Context) ([]*model.EvaluationResult, error)
	Delete(ctx context.Context, id string) error
}

// Deps are the runner's collaborators. Bus, Logger and EvaluationResults
// are optional. Without EvaluationResults a failed run leaves its
// evaluation documents in place.
type Deps struct {
	Locks          lock.Service
	Pool           *pool.Pool
	Experiments    ExperimentStore
	QuerySets      QuerySetStore
	Configurations ConfigurationStore
	Evaluators     *evaluation.Set
	Bus            bus.Bus
	Logger         *logger.Logger

	EvaluationResults EvaluationResultStore

	MaxQuerySetSize int

	// Disabled refuses every run with WORKBENCH_DISABLED.
	Disabled bool
}

func (d *Deps) missing() []string {
	var m []string
	if d.Locks == nil {
		m = append(m, "lock service")
	}
	if d.Pool == nil {
		m = append(m, "worker pool")
	}
	if d.Experiments == nil {
		m = append(m, "experiment store")
	}
	if d.QuerySets == nil {
		m = append(m, "query set store")
	}
	if d.Configurations == nil {
		m = append(m, "search configuration store")
	}
	if d.Evaluators == nil {
		m = append(m, "evaluators")
	}
	return m
}

// Runner executes experiment runs.
type Runner struct {
	deps Deps
	log  *logger.Logger
}

// NewRunner creates a runner. Missing collaborators are a
// CONFIGURATION_ERROR.
func NewRunner(deps Deps) (*Runner, error) {
	if m := deps.missing(); len(m) > 0 {
		return nil, notInitialized(m)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.MaxQuerySetSize <= 0 {
		deps.MaxQuerySetSize = DefaultMaxQuerySetSize
	}
	return &Runner{deps: deps, log: deps.Logger}, nil
}

func notInitialized(missing []string) error {
	return errors.ConfigurationError("job runner is not initialized: missing " + strings.Join(missing, ", "))
}

// Run executes one triggered run. When the parameters carry a lock
// duration, the run holds the job's lock for its whole length and the
// duration doubles as the run deadline.
//
// Run blocks until the terminal status is written and must not be called
// from a pool task.
func (r *Runner) Run(ctx context.Context, params model.JobParameters) error {
	if r == nil {
		return notInitialized([]string{"runner"})
	}
	if m := r.deps.missing(); len(m) > 0 {
		return notInitialized(m)
	}
	if r.deps.Disabled {
		return errors.DisabledError("running experiments")
	}
	if err := params.Validate(); err != nil {
		return errors.ValidationError(err.Error())
	}

	log := r.log
	if params.JobID != "" {
		log = log.WithJob(params.JobID)
	}

	d := params.LockDuration()
	if d <= 0 {
		return r.run(ctx, params, log)
	}

	err := lock.With(ctx, r.deps.Locks, params.LockKey(), d, func(ctx context.Context) error {
		// Branches still in flight after the terminal write are not
		// cancelled; the context is released at the deadline.
		runCtx, cancel := context.WithTimeout(ctx, d)
		time.AfterFunc(d, cancel)
		return r.run(runCtx, params, log)
	})
	if errors.IsLock(err) {
		log.WithError(err).Warn("Run skipped, lock not acquired", "key", params.LockKey())
	}
	return err
}

func (r *Runner) run(ctx context.Context, params model.JobParameters, log *logger.Logger) error {
	start := time.Now()
	runID := uuid.NewString()
	ctx = runctx.WithRunID(ctx, runID)
	ctx = judgment.WithRunMemo(ctx)
	log = log.WithContext(ctx)

	exp, err := r.resolveExperiment(ctx, params)
	if err != nil {
		// No experiment to record the failure on; the next trigger retries.
		log.WithError(err).Error("Experiment lookup failed, no status recorded",
			"experiment_id", params.ExperimentID)
		return err
	}
	log = log.WithExperiment(exp.ID)
	log.Info("Experiment run started", "type", exp.Type, "query_set_id", exp.QuerySetID,
		"configurations", len(exp.SearchConfigurationIDs))

	var inflight sync.WaitGroup
	records, err := r.evaluate(ctx, exp, &inflight, log)

	if err != nil {
		go r.discardEvaluations(ctx, runID, &inflight, log)
		exp.Fail(err)
	} else {
		exp.Complete(records)
	}
	r.persist(ctx, exp, log)
	r.publish(ctx, params, exp, time.Since(start), err, log)

	if err != nil {
		log.WithError(err).Error("Experiment failed", "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	log.Info("Experiment completed", "records", len(records), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// resolveExperiment loads the experiment, or creates and stores a new
// PENDING one for replay parameters.
func (r *Runner) resolveExperiment(ctx context.Context, params model.JobParameters) (*model.Experiment, error) {
	if params.Replay() {
		exp := params.NewExperiment(uuid.NewString(), time.Now())
		if err := r.deps.Experiments.Put(ctx, exp.ID, exp); err != nil {
			return nil, fmt.Errorf("creating experiment: %w", err)
		}
		return exp, nil
	}

	var exp *model.Experiment
	err := r.await(ctx, func(ctx context.Context) error {
		var err error
		exp, err = r.deps.Experiments.Get(ctx, params.ExperimentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// evaluate runs every stage after the experiment is known. Any error it
// returns is recorded on the experiment.
func (r *Runner) evaluate(ctx context.Context, exp *model.Experiment, inflight *sync.WaitGroup, log *logger.Logger) ([]model.ResultRecord, error) {
	if err := exp.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	evaluator, err := r.deps.Evaluators.For(exp.Type)
	if err != nil {
		return nil, err
	}

	var qs *model.QuerySet
	err = r.await(ctx, func(ctx context.Context) error {
		var err error
		qs, err = r.deps.QuerySets.Get(ctx, exp.QuerySetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if n := len(qs.Queries); n > r.deps.MaxQuerySetSize {
		return nil, errors.ValidationError(fmt.Sprintf("query set %s has %d queries, the limit is %d", qs.ID, n, r.deps.MaxQuerySetSize))
	}

	configs, err := r.loadConfigurations(ctx, exp.SearchConfigurationIDs)
	if err != nil {
		return nil, err
	}
	log.Debug("Search configurations resolved", "count", len(configs))

	return r.evaluateQueries(ctx, exp, qs.Texts(), configs, evaluator, inflight)
}

// loadConfigurations looks up every configuration concurrently.
func (r *Runner) loadConfigurations(ctx context.Context, ids []string) (map[string]model.SearchConfiguration, error) {
	var mu sync.Mutex
	configs := make(map[string]model.SearchConfiguration, len(ids))
	j := newJoin(len(ids))

	for _, id := range ids {
		r.deps.Pool.Go(ctx, func(ctx context.Context) error {
			cfg, err := r.deps.Configurations.Get(ctx, id)
			if err != nil {
				return err
			}
			if j.aborted() {
				return nil
			}
			mu.Lock()
			configs[id] = *cfg
			mu.Unlock()
			return nil
		}, j.complete)
	}

	if err := j.wait(ctx, "search configuration lookup"); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return configs, nil
}

// evaluateQueries dispatches every query to the evaluator and gathers the
// records in completion order. inflight is released as each branch ends,
// including branches still running after the join settled.
func (r *Runner) evaluateQueries(ctx context.Context, exp *model.Experiment, queries []string, configs map[string]model.SearchConfiguration, ev evaluation.Evaluator, inflight *sync.WaitGroup) ([]model.ResultRecord, error) {
	j := newJoin(len(queries))
	agg := newAggregator(j)
	inflight.Add(len(queries))
	done := func(err error) {
		j.complete(err)
		inflight.Done()
	}

	for _, q := range queries {
		req := evaluation.Request{
			ExperimentID: exp.ID,
			QueryText:    q,
			Configs:      configs,
			ConfigOrder:  exp.SearchConfigurationIDs,
			JudgmentIDs:  exp.JudgmentIDs,
			Size:         exp.Size,
		}
		r.deps.Pool.Go(ctx, func(ctx context.Context) error {
			res, err := ev.Evaluate(ctx, req)
			if err != nil {
				return err
			}
			records, err := shape(q, res)
			if err != nil {
				return err
			}
			agg.add(records...)
			return nil
		}, done)
	}

	if err := j.wait(ctx, "query evaluation"); err != nil {
		return nil, err
	}
	return agg.snapshot(), nil
}

// await runs task on the pool and waits for its outcome.
func (r *Runner) await(ctx context.Context, task pool.Task) error {
	done := make(chan error, 1)
	r.deps.Pool.Go(ctx, task, func(err error) { done <- err })
	return <-done
}

// discardEvaluations deletes the evaluation documents written by a failed
// run once every query branch of the run has ended.
func (r *Runner) discardEvaluations(ctx context.Context, runID string, inflight *sync.WaitGroup, log *logger.Logger) {
	if r.deps.EvaluationResults == nil {
		return
	}
	inflight.Wait()

	ctx = context.WithoutCancel(ctx)
	docs, err := r.deps.EvaluationResults.List(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to list evaluation results of failed run")
		return
	}
	removed := 0
	for _, doc := range docs {
		if doc.RunID != runID {
			continue
		}
		if err := r.deps.EvaluationResults.Delete(ctx, doc.ID); err != nil {
			log.WithError(err).Warn("Failed to delete evaluation result", "evaluation_id", doc.ID)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Debug("Discarded evaluation results of failed run", "count", removed)
	}
}

// persist writes the terminal status once. A failed write is logged only.
func (r *Runner) persist(ctx context.Context, exp *model.Experiment, log *logger.Logger) {
	if err := r.deps.Experiments.Put(context.WithoutCancel(ctx), exp.ID, exp); err != nil {
		log.WithError(err).Error("Failed to persist experiment status", "status", exp.Status)
	}
}

func (r *Runner) publish(ctx context.Context, params model.JobParameters, exp *model.Experiment, took time.Duration, runErr error, log *logger.Logger) {
	if r.deps.Bus == nil {
		return
	}

	payload := bus.ExperimentEvent{
		ExperimentID: exp.ID,
		JobID:        params.JobID,
		RunID:        runctx.RunID(ctx),
		Type:         string(exp.Type),
		Status:       string(exp.Status),
		Records:      len(exp.Results),
		DurationMs:   took.Milliseconds(),
	}
	topic := bus.TopicExperimentCompleted
	if runErr != nil {
		topic = bus.TopicExperimentFailed
		payload.Error = runErr.Error()
		payload.Records = 0
	}

	event := bus.NewEvent(topic, "experiment-runner", payload)
	event.CorrelationID = params.JobID
	if err := r.deps.Bus.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		log.WithError(err).Warn("Failed to publish experiment event", "topic", topic)
	}
}
