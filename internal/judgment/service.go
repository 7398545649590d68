// Package judgment resolves the relevance judgments evaluators score
// against, and computes implicit judgments from user interaction logs.
package judgment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ricesearch/search-relevance/internal/clickmodel"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/ubi"
)

// Ratings maps query text to document id to rating.
type Ratings map[string]map[string]float64

// For returns the ratings of one query. The map is nil when the query was
// never judged.
func (r Ratings) For(query string) map[string]float64 {
	return r[query]
}

// Source is what evaluators need from the judgment layer.
type Source interface {
	Ratings(ctx context.Context, judgmentIDs []string) (Ratings, error)
}

// Store is the persistence used by the service.
type Store interface {
	Get(ctx context.Context, id string) (*model.Judgment, error)
	Put(ctx context.Context, id string, j *model.Judgment) error
}

// Service loads stored judgment sets and computes click-model judgments.
type Service struct {
	store  Store
	cache  Cache
	events ubi.EventSource
	log    *logger.Logger

	group singleflight.Group
}

// Config configures the service.
type Config struct {
	Store  Store
	Cache  Cache
	Events ubi.EventSource
	Logger *logger.Logger
}

// NewService creates a judgment service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache(0)
	}
	return &Service{
		store:  cfg.Store,
		cache:  cfg.Cache,
		events: cfg.Events,
		log:    cfg.Logger,
	}
}

// Ratings loads and merges the judgment sets. When two sets rate the same
// (query, document), the set listed first wins.
func (s *Service) Ratings(ctx context.Context, judgmentIDs []string) (Ratings, error) {
	out := make(Ratings)
	for _, id := range judgmentIDs {
		j, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, qr := range j.Ratings {
			docs, ok := out[qr.Query]
			if !ok {
				docs = make(map[string]float64, len(qr.Ratings))
				out[qr.Query] = docs
			}
			for _, r := range qr.Ratings {
				if _, seen := docs[r.DocID]; !seen {
					docs[r.DocID] = r.Rating
				}
			}
		}
	}
	return out, nil
}

// load fetches one judgment set. Concurrent loads of the same id share a
// single store read. Within a run memo (see WithRunMemo) each set is read
// once; outside one every call reads the store.
func (s *Service) load(ctx context.Context, id string) (*model.Judgment, error) {
	m := runMemoFrom(ctx)
	if j, ok := m.get(id); ok {
		return j, nil
	}

	if s.store == nil {
		return nil, errors.ConfigurationError("judgment store is not initialized")
	}

	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		return s.store.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	j := v.(*model.Judgment)
	m.put(id, j)
	return j, nil
}

type runMemoKey struct{}

type runMemo struct {
	mu   sync.Mutex
	sets map[string]*model.Judgment
}

// WithRunMemo returns a context under which Ratings reads every judgment
// set at most once, so all queries of a run score against the same
// snapshot. The memo dies with the run's context.
func WithRunMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, runMemoKey{}, &runMemo{sets: make(map[string]*model.Judgment)})
}

func runMemoFrom(ctx context.Context) *runMemo {
	m, _ := ctx.Value(runMemoKey{}).(*runMemo)
	return m
}

func (m *runMemo) get(id string) (*model.Judgment, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.sets[id]
	return j, ok
}

func (m *runMemo) put(id string, j *model.Judgment) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.sets[id] = j
	m.mu.Unlock()
}

// ComputeClickModel returns the COEC judgment set for params, reusing a
// cached set computed with identical parameters.
func (s *Service) ComputeClickModel(ctx context.Context, name string, params model.ClickModelParameters) (*model.Judgment, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	if s.events == nil {
		return nil, errors.ConfigurationError("UBI event source is not initialized")
	}

	key := params.CacheKey()
	if cached, err := s.cache.Get(ctx, key); err != nil {
		s.log.WithError(err).Warn("Judgment cache read failed", "key", key)
	} else if cached != nil {
		s.log.Debug("Judgment cache hit", "key", key, "judgment_id", cached.ID)
		return cached, nil
	}

	v, err, _ := s.group.Do("coec:"+key, func() (interface{}, error) {
		return s.computeClickModel(ctx, name, key, params)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Judgment), nil
}

func (s *Service) computeClickModel(ctx context.Context, name, key string, params model.ClickModelParameters) (*model.Judgment, error) {
	start := time.Now()

	events, err := s.events.Events(ctx, params.StartDate, params.EndDate)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "reading UBI events", err)
	}

	scores, stats, err := clickmodel.Compute(events, params)
	if err != nil {
		return nil, errors.EvaluationError("computing click model", err)
	}

	j := clickmodel.ToJudgment(uuid.NewString(), name, scores, params)
	j.CreatedAt = time.Now()
	j.Metadata["cacheKey"] = key

	if s.store != nil {
		if err := s.store.Put(ctx, j.ID, j); err != nil {
			return nil, fmt.Errorf("saving judgment %s: %w", j.ID, err)
		}
	}
	if err := s.cache.Put(ctx, key, j); err != nil {
		s.log.WithError(err).Warn("Judgment cache write failed", "key", key)
	}

	s.log.Info("Computed click model judgments",
		"judgment_id", j.ID,
		"events", stats.EventsUsed,
		"dropped", stats.EventsDropped,
		"pairs", stats.Pairs,
		"excluded", stats.Excluded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return j, nil
}
