package storage

import (
	"fmt"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/redisconn"
)

// Namespaces.
const (
	NamespaceExperiments          = "experiments"
	NamespaceQuerySets            = "query_sets"
	NamespaceSearchConfigurations = "search_configurations"
	NamespaceJudgments            = "judgments"
	NamespaceEvaluationResults    = "evaluation_results"
	NamespaceScheduledJobs        = "scheduled_jobs"
)

// Store bundles the typed collections.
type Store struct {
	Experiments          *Collection[model.Experiment]
	QuerySets            *Collection[model.QuerySet]
	SearchConfigurations *Collection[model.SearchConfiguration]
	Judgments            *Collection[model.Judgment]
	EvaluationResults    *Collection[model.EvaluationResult]
	ScheduledJobs        *Collection[model.JobParameters]

	backend Backend
}

// New builds a store over backend.
func New(backend Backend) *Store {
	return &Store{
		Experiments:          NewCollection[model.Experiment](backend, NamespaceExperiments, "experiment"),
		QuerySets:            NewCollection[model.QuerySet](backend, NamespaceQuerySets, "query set"),
		SearchConfigurations: NewCollection[model.SearchConfiguration](backend, NamespaceSearchConfigurations, "search configuration"),
		Judgments:            NewCollection[model.Judgment](backend, NamespaceJudgments, "judgment"),
		EvaluationResults:    NewCollection[model.EvaluationResult](backend, NamespaceEvaluationResults, "evaluation result"),
		ScheduledJobs:        NewCollection[model.JobParameters](backend, NamespaceScheduledJobs, "scheduled job"),
		backend:              backend,
	}
}

// NewMemory returns a store over a fresh in-memory backend.
func NewMemory() *Store {
	return New(NewMemoryBackend())
}

// Open builds the backend selected by cfg.
func Open(cfg config.StorageConfig) (*Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemory(), nil
	case "file":
		return New(NewFileBackend(cfg.Path)), nil
	case "badger":
		b, err := OpenBadger(cfg.Path)
		if err != nil {
			return nil, err
		}
		return New(b), nil
	case "redis":
		client, err := redisconn.Open(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return New(NewRedisBackend(client, cfg.Prefix)), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
