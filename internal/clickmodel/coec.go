// Package clickmodel derives implicit relevance judgments from user
// interaction logs using the COEC (clicks over expected clicks) model.
//
// The expected click rate of a rank is the click rate observed at that rank
// across every (query, document) pair. A pair's score is its click count
// divided by the clicks it would have received had it performed like an
// average result at the ranks where it was shown. A score of 1 means
// average, 2 means twice as many clicks as expected.
package clickmodel

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/ubi"
)

// Key identifies a (query, document) pair.
type Key struct {
	Query string
	DocID string
}

// Judgments maps pairs to their rounded COEC score.
type Judgments map[Key]float64

// Stats summarises one computation.
type Stats struct {
	EventsUsed    int
	EventsDropped int
	Pairs         int
	Excluded      int
}

type pairCounts struct {
	impressions map[int]int
	clicks      int
}

// ComputeJudgments runs the COEC model over events.
//
// Events outside [1, MaxRank] or outside the optional date range are
// ignored. Pairs without an expected baseline at any of their ranks are
// left out of the result rather than scored zero.
func ComputeJudgments(events []ubi.Event, params model.ClickModelParameters) (Judgments, error) {
	j, _, err := Compute(events, params)
	return j, err
}

// Compute is ComputeJudgments that also reports counters.
func Compute(events []ubi.Event, params model.ClickModelParameters) (Judgments, Stats, error) {
	var stats Stats
	if err := params.Validate(); err != nil {
		return nil, stats, err
	}

	rankImpressions := make([]int, params.MaxRank+1)
	rankClicks := make([]int, params.MaxRank+1)
	pairs := make(map[Key]*pairCounts)

	for _, e := range events {
		if e.Position < 1 || e.Position > params.MaxRank || !params.InRange(e.Timestamp) {
			stats.EventsDropped++
			continue
		}
		if !e.IsClick() && !e.IsImpression() {
			stats.EventsDropped++
			continue
		}
		if e.UserQuery == "" || e.DocumentID == "" {
			stats.EventsDropped++
			continue
		}
		stats.EventsUsed++

		key := Key{Query: e.UserQuery, DocID: e.DocumentID}
		pc, ok := pairs[key]
		if !ok {
			pc = &pairCounts{impressions: make(map[int]int)}
			pairs[key] = pc
		}

		if e.IsClick() {
			rankClicks[e.Position]++
			pc.clicks++
		} else {
			rankImpressions[e.Position]++
			pc.impressions[e.Position]++
		}
	}

	expected := make([]float64, params.MaxRank+1)
	for r := 1; r <= params.MaxRank; r++ {
		if rankImpressions[r] > 0 {
			expected[r] = float64(rankClicks[r]) / float64(rankImpressions[r])
		}
	}

	out := make(Judgments, len(pairs))
	for key, pc := range pairs {
		var expectedClicks float64
		for rank, n := range pc.impressions {
			expectedClicks += float64(n) * expected[rank]
		}
		if expectedClicks == 0 {
			stats.Excluded++
			continue
		}
		out[key] = Round(float64(pc.clicks)/expectedClicks, params.RoundingDigits)
	}
	stats.Pairs = len(out)

	return out, stats, nil
}

// Round rounds x to digits decimal places, halves away from zero.
func Round(x float64, digits int) float64 {
	f, _ := decimal.NewFromFloat(x).Round(int32(digits)).Float64()
	return f
}

// ToJudgment converts computed scores into a UBI judgment document. Ratings
// are ordered by query, then document id.
func ToJudgment(id, name string, judgments Judgments, params model.ClickModelParameters) *model.Judgment {
	byQuery := make(map[string][]model.DocRating)
	for key, score := range judgments {
		byQuery[key.Query] = append(byQuery[key.Query], model.DocRating{DocID: key.DocID, Rating: score})
	}

	queries := make([]string, 0, len(byQuery))
	for q := range byQuery {
		queries = append(queries, q)
	}
	sort.Strings(queries)

	ratings := make([]model.QueryRatings, 0, len(queries))
	for _, q := range queries {
		docs := byQuery[q]
		sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
		ratings = append(ratings, model.QueryRatings{Query: q, Ratings: docs})
	}

	return &model.Judgment{
		ID:       id,
		Name:     name,
		Type:     model.UBIJudgment,
		Status:   model.JudgmentCompleted,
		Metadata: params.Metadata(),
		Ratings:  ratings,
	}
}
