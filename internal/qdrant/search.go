package qdrant

import (
	"context"
	"sort"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// TextQuery ranks the points of a collection that match full-text
// conditions. Match maps payload fields (with a full-text index) to the
// text they must contain. Results are ordered by the numeric payload field
// OrderBy, descending; without OrderBy Qdrant's natural order is used.
type TextQuery struct {
	Index   string
	Match   map[string]string
	OrderBy string
	IDField string
	Limit   uint64
}

// SearchResult is one ranked point.
type SearchResult struct {
	ID    string
	Score float64
}

// TextSearch runs q and returns hits in rank order.
func (c *Client) TextSearch(ctx context.Context, q TextQuery) ([]SearchResult, error) {
	if len(q.Match) == 0 {
		return nil, errors.ValidationError("qdrant text query needs at least one match condition")
	}
	limit := q.Limit
	if limit == 0 {
		limit = 10
	}

	req := &qdrant.QueryPoints{
		CollectionName: c.collection(q.Index),
		Filter:         buildTextFilter(q.Match),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(q.IDField != ""),
	}
	if q.OrderBy != "" {
		req.Query = qdrant.NewQueryOrderBy(&qdrant.OrderBy{
			Key:       q.OrderBy,
			Direction: qdrant.Direction_Desc.Enum(),
		})
	}

	var results []SearchResult
	err := c.do(ctx, func(ctx context.Context) error {
		points, err := c.conn.Query(ctx, req)
		if err != nil {
			return errors.SearchError("qdrant query on "+req.CollectionName+" failed", err)
		}
		results = scoredPointsToResults(points, q.IDField)
		return nil
	})
	return results, err
}

// buildTextFilter requires every field to contain its text. Fields are
// sorted so the filter is deterministic.
func buildTextFilter(match map[string]string) *qdrant.Filter {
	fields := make([]string, 0, len(match))
	for f := range match {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	conditions := make([]*qdrant.Condition, 0, len(fields))
	for _, f := range fields {
		conditions = append(conditions, qdrant.NewMatchText(f, match[f]))
	}
	return &qdrant.Filter{Must: conditions}
}

// scoredPointsToResults converts points to results. The document id comes
// from the idField payload value when present, the point id otherwise.
// Ordered results carry their order value as score; unscored results get a
// rank-derived score so downstream normalization has something to work with.
func scoredPointsToResults(points []*qdrant.ScoredPoint, idField string) []SearchResult {
	results := make([]SearchResult, 0, len(points))

	for i, p := range points {
		id := pointID(p.GetId())
		if idField != "" {
			if v := payloadString(p.GetPayload(), idField); v != "" {
				id = v
			}
		}

		score := float64(p.GetScore())
		if ov := p.GetOrderValue(); ov != nil {
			switch v := ov.GetVariant().(type) {
			case *qdrant.OrderValue_Int:
				score = float64(v.Int)
			case *qdrant.OrderValue_Float:
				score = v.Float
			}
		} else if score == 0 {
			score = 1 / float64(i+1)
		}

		results = append(results, SearchResult{ID: id, Score: score})
	}

	return results
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	}
	return ""
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}
