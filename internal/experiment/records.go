package experiment

import (
	"fmt"

	"github.com/ricesearch/search-relevance/internal/evaluation"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// Keys of pairwise records.
const (
	KeyPairwiseComparison = "pairwiseComparison"
	KeyComparedWith       = "comparedWith"
)

// shape turns one query's evaluation result into experiment records.
//
// Pairwise results become one record per configuration, each listing its
// agreement with every other configuration. Pointwise records are
// forwarded unchanged. Hybrid results are flattened and tagged with the
// query text.
func shape(queryText string, res evaluation.Result) ([]model.ResultRecord, error) {
	switch r := res.(type) {
	case *evaluation.PairwiseResult:
		return pairwiseRecords(queryText, r), nil
	case *evaluation.PointwiseResult:
		return r.Records, nil
	case *evaluation.HybridResult:
		nested := r.Configurations()
		out := make([]model.ResultRecord, 0, len(nested))
		for _, rec := range nested {
			flat := make(model.ResultRecord, len(rec)+1)
			for k, v := range rec {
				flat[k] = v
			}
			flat[model.KeyQueryText] = queryText
			out = append(out, flat)
		}
		return out, nil
	case nil:
		return nil, errors.EvaluationError("evaluator returned no result", nil)
	default:
		return nil, errors.EvaluationError(fmt.Sprintf("unsupported evaluation result %T", res), nil)
	}
}

func pairwiseRecords(queryText string, r *evaluation.PairwiseResult) []model.ResultRecord {
	comparisons := make(map[string][]map[string]any, len(r.Snapshots))
	for _, p := range r.Pairs {
		comparisons[p.A] = append(comparisons[p.A], comparison(p.B, p))
		comparisons[p.B] = append(comparisons[p.B], comparison(p.A, p))
	}

	out := make([]model.ResultRecord, 0, len(r.Snapshots))
	for _, s := range r.Snapshots {
		cmp := comparisons[s.ConfigID]
		if cmp == nil {
			cmp = []map[string]any{}
		}
		out = append(out, model.ResultRecord{
			model.KeyQueryText:             queryText,
			model.KeySearchConfigurationID: s.ConfigID,
			model.KeyDocIDs:                s.DocIDs,
			KeyPairwiseComparison:          cmp,
		})
	}
	return out
}

func comparison(other string, p evaluation.PairMetrics) map[string]any {
	c := map[string]any{KeyComparedWith: other}
	for k, v := range p.Values() {
		c[k] = v
	}
	return c
}
