package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/search-relevance/internal/judgment"
	"github.com/ricesearch/search-relevance/internal/model"
	runctx "github.com/ricesearch/search-relevance/internal/pkg/context"
	"github.com/ricesearch/search-relevance/internal/searchexec"
)

// Record keys specific to pointwise records.
const (
	KeyJudgments = "judgments"
)

// PointwiseResult carries one record per configuration, already keyed by
// evaluation id, configuration id and query text.
type PointwiseResult struct {
	Records []model.ResultRecord
}

func (*PointwiseResult) isResult() {}

// Pointwise scores every configuration's results against the judgments.
type Pointwise struct {
	exec      searchexec.Executor
	judgments judgment.Source
	results   ResultStore
}

// NewPointwise creates a pointwise evaluator. results may be nil, in which
// case evaluation documents are not persisted.
func NewPointwise(exec searchexec.Executor, judgments judgment.Source, results ResultStore) *Pointwise {
	return &Pointwise{exec: exec, judgments: judgments, results: results}
}

func (p *Pointwise) Evaluate(ctx context.Context, req Request) (Result, error) {
	configs, err := req.configs()
	if err != nil {
		return nil, err
	}
	ratings, err := p.judgments.Ratings(ctx, req.JudgmentIDs)
	if err != nil {
		return nil, err
	}
	judged := ratings.For(req.QueryText)

	res := &PointwiseResult{Records: make([]model.ResultRecord, 0, len(configs))}
	for _, cfg := range configs {
		docIDs, err := search(ctx, p.exec, cfg, req, nil)
		if err != nil {
			return nil, err
		}

		doc := &model.EvaluationResult{
			ID:                    uuid.NewString(),
			ExperimentID:          req.ExperimentID,
			RunID:                 runctx.RunID(ctx),
			SearchConfigurationID: cfg.ID,
			QueryText:             req.QueryText,
			DocIDs:                docIDs,
			Judgments:             judgedSubset(docIDs, judged),
			Metrics:               PointwiseMetrics(docIDs, judged, req.Size),
			CreatedAt:             time.Now(),
		}
		if p.results != nil {
			if err := p.results.Put(ctx, doc.ID, doc); err != nil {
				return nil, fmt.Errorf("saving evaluation result: %w", err)
			}
		}

		res.Records = append(res.Records, model.ResultRecord{
			model.KeyEvaluationID:          doc.ID,
			model.KeySearchConfigurationID: cfg.ID,
			model.KeyQueryText:             req.QueryText,
			model.KeyDocIDs:                docIDs,
			KeyJudgments:                   doc.Judgments,
			model.KeyMetrics:               doc.Metrics,
		})
	}
	return res, nil
}

// PointwiseMetrics computes the judged metrics of one ranked list at k.
func PointwiseMetrics(docIDs []string, judged map[string]float64, k int) map[string]float64 {
	rel := ratingsOf(docIDs, judged)
	hits := binary(rel)
	return map[string]float64{
		fmt.Sprintf("Coverage@%d", k):  Coverage(docIDs, judged, k),
		fmt.Sprintf("Precision@%d", k): Precision(hits, k, 1),
		fmt.Sprintf("Recall@%d", k):    Recall(hits, k, 1, countRelevant(judged)),
		fmt.Sprintf("MAP@%d", k):       AveragePrecision(hits, k, 1),
		fmt.Sprintf("NDCG@%d", k):      NDCG(rel, idealOf(judged), k),
		"MRR":                          MRR(hits, 1),
	}
}

func judgedSubset(docIDs []string, judged map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, id := range docIDs {
		if r, ok := judged[id]; ok {
			out[id] = r
		}
	}
	return out
}
