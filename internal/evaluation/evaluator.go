// Package evaluation scores the results of one query against a set of
// search configurations.
package evaluation

import (
	"context"
	"fmt"

	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/searchexec"
)

// Request is the input of one evaluation: a single query against every
// configuration of an experiment.
type Request struct {
	ExperimentID string
	QueryText    string
	Configs      map[string]model.SearchConfiguration
	// ConfigOrder lists Configs keys in the experiment's order.
	ConfigOrder []string
	JudgmentIDs []string
	Size        int
}

// configs returns the configurations in request order.
func (r *Request) configs() ([]model.SearchConfiguration, error) {
	out := make([]model.SearchConfiguration, 0, len(r.ConfigOrder))
	for _, id := range r.ConfigOrder {
		cfg, ok := r.Configs[id]
		if !ok {
			return nil, errors.NotFoundError("search configuration", id)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Result is the output of one evaluation. The concrete type depends on the
// experiment type: *PairwiseResult, *PointwiseResult or *HybridResult.
type Result interface {
	isResult()
}

// Evaluator evaluates one query.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// ResultStore persists pointwise evaluation documents.
type ResultStore interface {
	Put(ctx context.Context, id string, r *model.EvaluationResult) error
}

// Set holds one evaluator per experiment type.
type Set struct {
	Pairwise  Evaluator
	Pointwise Evaluator
	Hybrid    Evaluator
}

// For returns the evaluator serving t.
func (s *Set) For(t model.ExperimentType) (Evaluator, error) {
	var e Evaluator
	switch t {
	case model.PairwiseComparison:
		e = s.Pairwise
	case model.PointwiseEvaluation:
		e = s.Pointwise
	case model.HybridOptimizer:
		e = s.Hybrid
	default:
		return nil, errors.ConfigurationError(fmt.Sprintf("unknown experiment type %q", t))
	}
	if e == nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("no evaluator registered for %s", t))
	}
	return e, nil
}

// Complete reports whether every experiment type has an evaluator.
func (s *Set) Complete() bool {
	return s != nil && s.Pairwise != nil && s.Pointwise != nil && s.Hybrid != nil
}

func search(ctx context.Context, exec searchexec.Executor, cfg model.SearchConfiguration, req Request, pipeline *searchexec.HybridPipeline) ([]string, error) {
	resp, err := exec.Search(ctx, searchexec.Request{
		Config:    cfg,
		QueryText: req.QueryText,
		Size:      req.Size,
		Pipeline:  pipeline,
	})
	if err != nil {
		return nil, err
	}
	ids := resp.DocIDs()
	if len(ids) > req.Size {
		ids = ids[:req.Size]
	}
	return ids, nil
}

// ratingsOf maps the retrieved documents to their ratings. Unjudged
// documents score 0.
func ratingsOf(docIDs []string, judged map[string]float64) []float64 {
	rel := make([]float64, len(docIDs))
	for i, id := range docIDs {
		rel[i] = judged[id]
	}
	return rel
}

func binary(rel []float64) []float64 {
	out := make([]float64, len(rel))
	for i, r := range rel {
		if r > 0 {
			out[i] = 1
		}
	}
	return out
}

func idealOf(judged map[string]float64) []float64 {
	ideal := make([]float64, 0, len(judged))
	for _, r := range judged {
		ideal = append(ideal, r)
	}
	return ideal
}

func countRelevant(judged map[string]float64) int {
	n := 0
	for _, r := range judged {
		if r > 0 {
			n++
		}
	}
	return n
}
