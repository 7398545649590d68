// Package searchexec sends evaluation queries to the search engine and
// returns the ranked document ids it answers with.
package searchexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ricesearch/search-relevance/internal/model"
)

// Normalization techniques and combination techniques understood by the
// hybrid normalization processor.
const (
	NormalizationMinMax = "min_max"
	NormalizationL2     = "l2"

	CombinationArithmeticMean = "arithmetic_mean"
	CombinationGeometricMean  = "geometric_mean"
	CombinationHarmonicMean   = "harmonic_mean"
)

// HybridPipeline overrides the configured search pipeline with a temporary
// normalization processor.
type HybridPipeline struct {
	Normalization string    `json:"normalization"`
	Combination   string    `json:"combination"`
	Weights       []float64 `json:"weights"`
}

// Processor renders the pipeline as a search_pipeline body object.
func (p *HybridPipeline) Processor() map[string]any {
	weights := make([]any, len(p.Weights))
	for i, w := range p.Weights {
		weights[i] = w
	}
	return map[string]any{
		"phase_results_processors": []any{
			map[string]any{
				"normalization-processor": map[string]any{
					"normalization": map[string]any{"technique": p.Normalization},
					"combination": map[string]any{
						"technique":  p.Combination,
						"parameters": map[string]any{"weights": weights},
					},
				},
			},
		},
	}
}

// Request is one query against one search configuration.
type Request struct {
	Config    model.SearchConfiguration
	QueryText string
	Size      int
	Pipeline  *HybridPipeline
}

// Hit is one ranked document.
type Hit struct {
	DocID string
	Score float64
}

// Response holds hits in rank order.
type Response struct {
	Hits []Hit
}

// DocIDs returns the hit ids in rank order.
func (r *Response) DocIDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.DocID
	}
	return ids
}

// Executor runs a search request.
type Executor interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// RenderTemplate replaces the search text placeholder with queryText,
// escaped so the result stays valid JSON when the placeholder sits inside
// a string literal.
func RenderTemplate(template, queryText string) (string, error) {
	if !strings.Contains(template, model.SearchTextPlaceholder) {
		return "", fmt.Errorf("query template has no %s placeholder", model.SearchTextPlaceholder)
	}
	quoted, err := json.Marshal(queryText)
	if err != nil {
		return "", err
	}
	escaped := string(quoted[1 : len(quoted)-1])
	return strings.ReplaceAll(template, model.SearchTextPlaceholder, escaped), nil
}
