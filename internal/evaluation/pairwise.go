package evaluation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/search-relevance/internal/searchexec"
)

// Snapshot is the ranked result list one configuration returned.
type Snapshot struct {
	ConfigID string
	DocIDs   []string
}

// PairMetrics holds the agreement between two configurations' rankings.
type PairMetrics struct {
	A, B              string
	Jaccard           float64
	RBO50             float64
	RBO90             float64
	FrequencyWeighted float64
}

// Values returns the metrics keyed the way they are reported.
func (p PairMetrics) Values() map[string]float64 {
	return map[string]float64{
		"jaccard":           p.Jaccard,
		"rbo50":             p.RBO50,
		"rbo90":             p.RBO90,
		"frequencyWeighted": p.FrequencyWeighted,
	}
}

// PairwiseResult holds one snapshot per configuration and the metrics of
// every unordered pair, both in configuration order.
type PairwiseResult struct {
	Snapshots []Snapshot
	Pairs     []PairMetrics
}

func (*PairwiseResult) isResult() {}

// Pairwise compares the rankings configurations return for the same query.
// It needs no judgments.
type Pairwise struct {
	exec searchexec.Executor
}

// NewPairwise creates a pairwise evaluator.
func NewPairwise(exec searchexec.Executor) *Pairwise {
	return &Pairwise{exec: exec}
}

func (p *Pairwise) Evaluate(ctx context.Context, req Request) (Result, error) {
	configs, err := req.configs()
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range configs {
		g.Go(func() error {
			ids, err := search(gctx, p.exec, cfg, req, nil)
			if err != nil {
				return err
			}
			snapshots[i] = Snapshot{ConfigID: cfg.ID, DocIDs: ids}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &PairwiseResult{Snapshots: snapshots}
	for i := 0; i < len(snapshots); i++ {
		for j := i + 1; j < len(snapshots); j++ {
			a, b := snapshots[i].DocIDs, snapshots[j].DocIDs
			res.Pairs = append(res.Pairs, PairMetrics{
				A:                 snapshots[i].ConfigID,
				B:                 snapshots[j].ConfigID,
				Jaccard:           Jaccard(a, b),
				RBO50:             RBO(a, b, 0.5),
				RBO90:             RBO(a, b, 0.9),
				FrequencyWeighted: FrequencyWeighted(a, b),
			})
		}
	}
	return res, nil
}
