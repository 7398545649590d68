package searchexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/qdrant"
)

// QdrantTemplate is the query template layout for Qdrant-backed indexes:
//
//	{"match": {"title": "%SearchText%"}, "order_by": "popularity", "id_field": "sku"}
type QdrantTemplate struct {
	Match   map[string]string `json:"match"`
	OrderBy string            `json:"order_by,omitempty"`
	IDField string            `json:"id_field,omitempty"`
}

// TextSearcher is the part of the Qdrant client used here.
type TextSearcher interface {
	TextSearch(ctx context.Context, q qdrant.TextQuery) ([]qdrant.SearchResult, error)
}

// QdrantExecutor runs full-text match queries against Qdrant collections.
// Hybrid pipeline overrides are not supported.
type QdrantExecutor struct {
	client TextSearcher
}

// NewQdrantExecutor creates a Qdrant executor.
func NewQdrantExecutor(client TextSearcher) *QdrantExecutor {
	return &QdrantExecutor{client: client}
}

// ParseQdrantTemplate renders and decodes a Qdrant query template.
func ParseQdrantTemplate(template, queryText string) (*QdrantTemplate, error) {
	rendered, err := RenderTemplate(template, queryText)
	if err != nil {
		return nil, err
	}
	var t QdrantTemplate
	if err := json.Unmarshal([]byte(rendered), &t); err != nil {
		return nil, fmt.Errorf("invalid qdrant template: %w", err)
	}
	if len(t.Match) == 0 {
		return nil, fmt.Errorf("qdrant template needs at least one match field")
	}
	return &t, nil
}

// Search implements Executor.
func (e *QdrantExecutor) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Pipeline != nil {
		return nil, errors.ConfigurationError("hybrid pipelines are not supported by the qdrant engine")
	}

	t, err := ParseQdrantTemplate(req.Config.QueryTemplate, req.QueryText)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("search configuration %s: %v", req.Config.ID, err))
	}

	results, err := e.client.TextSearch(ctx, qdrant.TextQuery{
		Index:   req.Config.Index,
		Match:   t.Match,
		OrderBy: t.OrderBy,
		IDField: t.IDField,
		Limit:   uint64(req.Size),
	})
	if err != nil {
		return nil, errors.SearchError(fmt.Sprintf("searching collection %s", req.Config.Index), err)
	}

	out := &Response{Hits: make([]Hit, 0, len(results))}
	for _, r := range results {
		out.Hits = append(out.Hits, Hit{DocID: r.ID, Score: r.Score})
	}
	return out, nil
}
