// Package app assembles the relevance workbench from configuration. Both
// binaries build their components through it.
package app

import (
	"context"
	"fmt"

	"github.com/ricesearch/search-relevance/internal/bus"
	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/evaluation"
	"github.com/ricesearch/search-relevance/internal/experiment"
	"github.com/ricesearch/search-relevance/internal/judgment"
	"github.com/ricesearch/search-relevance/internal/lock"
	"github.com/ricesearch/search-relevance/internal/metrics"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/pkg/redisconn"
	"github.com/ricesearch/search-relevance/internal/pkg/security"
	"github.com/ricesearch/search-relevance/internal/pool"
	"github.com/ricesearch/search-relevance/internal/scheduler"
	"github.com/ricesearch/search-relevance/internal/searchexec"
	"github.com/ricesearch/search-relevance/internal/storage"
	"github.com/ricesearch/search-relevance/internal/ubi"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	Store      *storage.Store
	Locks      lock.Service
	Metrics    *metrics.Metrics
	Pool       *pool.Pool
	Search     searchexec.Executor
	Judgments  *judgment.Service
	Evaluators *evaluation.Set
	Bus        bus.Bus
	Runner     *experiment.Runner
	Schedules  *scheduler.Service

	closers []func() error
}

// New wires every component. On error, whatever was already opened is
// closed again.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Default()
	}
	a := &App{Config: cfg, Log: log}
	if err := a.wire(); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	var err error
	cfg, log := a.Config, a.Log

	a.Store, err = storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)
	if cfg.Storage.Type == "redis" {
		log.Info("Storage opened", "type", cfg.Storage.Type, "url", security.RedactURL(cfg.Storage.RedisURL))
	} else {
		log.Info("Storage opened", "type", cfg.Storage.Type, "path", cfg.Storage.Path)
	}

	if a.Locks, err = a.openLocks(); err != nil {
		return err
	}

	a.Pool = pool.New(cfg.Runner.Workers, log)
	a.Metrics = metrics.New()
	a.Metrics.TrackPool(a.Pool.Running)

	engine, closeExec, err := searchexec.New(cfg.Search, cfg.Qdrant, log)
	if err != nil {
		return fmt.Errorf("creating search executor: %w", err)
	}
	exec := metrics.InstrumentExecutor(engine, a.Metrics)
	a.Search = exec
	a.closers = append(a.closers, closeExec)
	log.Info("Search executor ready", "engine", cfg.Search.Engine,
		"rate_limit", cfg.Search.RateLimit, "breaker", cfg.Search.BreakerEnabled)

	if a.Judgments, err = a.openJudgments(); err != nil {
		return err
	}

	a.Evaluators = &evaluation.Set{
		Pairwise:  evaluation.NewPairwise(exec),
		Pointwise: evaluation.NewPointwise(exec, a.Judgments, a.Store.EvaluationResults),
		Hybrid:    evaluation.NewHybridOptimizer(exec, a.Judgments, evaluation.HybridOptionsFrom(cfg.Hybrid), log),
	}

	a.Bus, err = bus.NewBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("creating event bus: %w", err)
	}
	a.closers = append(a.closers, a.Bus.Close)

	a.Runner, err = experiment.NewRunner(experiment.Deps{
		Locks:           a.Locks,
		Pool:            a.Pool,
		Experiments:     a.Store.Experiments,
		QuerySets:       a.Store.QuerySets,
		Configurations:  a.Store.SearchConfigurations,
		Evaluators:      a.Evaluators,
		Bus:             a.Bus,
		Logger:          log,
		MaxQuerySetSize: cfg.Runner.MaxQuerySetSize,
		Disabled:        !cfg.Runner.Enabled,

		EvaluationResults: a.Store.EvaluationResults,
	})
	if err != nil {
		return err
	}

	a.Schedules = scheduler.NewService(a.Store.ScheduledJobs, a.Store.Experiments, a.Bus, log)
	if cfg.Runner.DefaultLockPeriod > 0 {
		a.Schedules.DefaultLockDuration = cfg.Runner.DefaultLockPeriod
	}
	a.Schedules.Disabled = !cfg.Runner.Enabled
	if a.Schedules.Disabled {
		log.Warn("Workbench disabled, runs and new schedules are refused")
	}
	return nil
}

func (a *App) openLocks() (lock.Service, error) {
	switch a.Config.Lock.Type {
	case "memory", "":
		return lock.NewMemoryService(), nil
	case "redis":
		client, err := redisconn.Open(a.Config.Lock.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("opening lock backend: %w", err)
		}
		svc := lock.NewRedisService(client, a.Config.Lock.Prefix)
		a.closers = append(a.closers, svc.Close)
		a.Log.Info("Redis run lock connected", "url", security.RedactURL(a.Config.Lock.RedisURL))
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown lock type: %s", a.Config.Lock.Type)
	}
}

func (a *App) openJudgments() (*judgment.Service, error) {
	cfg := a.Config.Judgment
	jc := judgment.Config{
		Store:  a.Store.Judgments,
		Logger: a.Log,
	}

	switch cfg.CacheType {
	case "memory", "":
		jc.Cache = judgment.NewMemoryCache(cfg.CacheTTL)
	case "redis":
		client, err := redisconn.Open(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("opening judgment cache: %w", err)
		}
		cache := judgment.NewRedisCache(client, cfg.CacheTTL)
		a.closers = append(a.closers, cache.Close)
		a.Log.Info("Redis judgment cache connected", "url", security.RedactURL(cfg.RedisURL))
		jc.Cache = cache
	default:
		return nil, fmt.Errorf("unknown judgment cache type: %s", cfg.CacheType)
	}

	if cfg.UBIEventsPath != "" {
		jc.Events = ubi.NewFileSource(cfg.UBIEventsPath, a.Log)
	}
	return judgment.NewService(jc), nil
}

// EventLog returns the bus audit log, or an error when the bus is not
// logging events.
func (a *App) EventLog() (*bus.EventLogger, error) {
	logged, ok := a.Bus.(*bus.LoggedBus)
	if !ok || !logged.Events().IsEnabled() {
		return nil, errors.ConfigurationError("event log is off; set bus.event_log_enabled or RELEVANCE_EVENT_LOG_ENABLED")
	}
	return logged.Events(), nil
}

// Close drains the pool, then closes the bus, caches, locks and storage.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			a.Log.WithError(err).Warn("Worker pool did not drain")
			firstErr = err
		}
	}
	if err := a.closeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// closeAll runs closers in reverse order of opening.
func (a *App) closeAll() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.WithError(err).Warn("Close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
