package evaluation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/judgment"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/pkg/security"
	"github.com/ricesearch/search-relevance/internal/searchexec"
)

// Keys of a hybrid per-configuration record.
const (
	KeyNormalization = "normalization"
	KeyCombination   = "combination"
	KeyWeights       = "weights"
)

// HybridResult nests the per-configuration best variants under
// model.KeyConfigurationResults.
type HybridResult struct {
	Record model.ResultRecord
}

func (*HybridResult) isResult() {}

// Configurations returns the nested per-configuration records.
func (r *HybridResult) Configurations() []model.ResultRecord {
	recs, _ := r.Record[model.KeyConfigurationResults].([]model.ResultRecord)
	return recs
}

// HybridOptions bounds the explored parameter space.
type HybridOptions struct {
	Normalizations []string
	Combinations   []string
	WeightStep     float64
	// Parallelism caps concurrent variant searches per configuration.
	Parallelism int
}

// HybridOptionsFrom converts the hybrid configuration section.
func HybridOptionsFrom(cfg config.HybridConfig) HybridOptions {
	return HybridOptions{
		Normalizations: cfg.Normalizations,
		Combinations:   cfg.Combinations,
		WeightStep:     cfg.WeightStep,
	}
}

// HybridOptimizer searches the normalization, combination and weight space
// for the variant with the best NDCG per configuration.
type HybridOptimizer struct {
	exec      searchexec.Executor
	judgments judgment.Source
	variants  []searchexec.HybridPipeline
	limit     int
	log       *logger.Logger
}

// NewHybridOptimizer creates a hybrid optimizer.
func NewHybridOptimizer(exec searchexec.Executor, judgments judgment.Source, opts HybridOptions, log *logger.Logger) *HybridOptimizer {
	if log == nil {
		log = logger.Default()
	}
	if len(opts.Normalizations) == 0 {
		opts.Normalizations = []string{searchexec.NormalizationMinMax, searchexec.NormalizationL2}
	}
	if len(opts.Combinations) == 0 {
		opts.Combinations = []string{
			searchexec.CombinationArithmeticMean,
			searchexec.CombinationGeometricMean,
			searchexec.CombinationHarmonicMean,
		}
	}
	if opts.WeightStep <= 0 || opts.WeightStep > 1 {
		opts.WeightStep = 0.1
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &HybridOptimizer{
		exec:      exec,
		judgments: judgments,
		variants:  Variants(opts),
		limit:     opts.Parallelism,
		log:       log,
	}
}

// Variants lists the explored pipelines, normalization first, then
// combination, then weight.
func Variants(opts HybridOptions) []searchexec.HybridPipeline {
	weights := Weights(opts.WeightStep)
	out := make([]searchexec.HybridPipeline, 0, len(opts.Normalizations)*len(opts.Combinations)*len(weights))
	for _, n := range opts.Normalizations {
		for _, c := range opts.Combinations {
			for _, w := range weights {
				out = append(out, searchexec.HybridPipeline{Normalization: n, Combination: c, Weights: w})
			}
		}
	}
	return out
}

// Weights returns the [w, 1-w] pairs for w = 0, step, 2*step ... below 1,
// followed by [1, 0]. The endpoint is explored even when step does not
// divide 1. A non-positive step yields only the two endpoints.
func Weights(step float64) [][]float64 {
	one := decimal.NewFromInt(1)
	out := [][]float64{}
	if step > 0 {
		d := decimal.NewFromFloat(step)
		for i := int64(0); ; i++ {
			w := d.Mul(decimal.NewFromInt(i)).Round(4)
			if w.GreaterThanOrEqual(one) {
				break
			}
			out = append(out, []float64{w.InexactFloat64(), one.Sub(w).InexactFloat64()})
		}
	} else {
		out = append(out, []float64{0, 1})
	}
	return append(out, []float64{1, 0})
}

func (h *HybridOptimizer) Evaluate(ctx context.Context, req Request) (Result, error) {
	configs, err := req.configs()
	if err != nil {
		return nil, err
	}
	if len(h.variants) == 0 {
		return nil, errors.ConfigurationError("hybrid optimizer has no variants to explore")
	}
	ratings, err := h.judgments.Ratings(ctx, req.JudgmentIDs)
	if err != nil {
		return nil, err
	}
	judged := ratings.For(req.QueryText)

	records := make([]model.ResultRecord, 0, len(configs))
	for _, cfg := range configs {
		rec, err := h.optimize(ctx, cfg, req, judged)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}

	return &HybridResult{Record: model.ResultRecord{model.KeyConfigurationResults: records}}, nil
}

type variantOutcome struct {
	docIDs []string
	ndcg   float64
}

// optimize returns the best variant's record, or nil when no variant
// returned any hits.
func (h *HybridOptimizer) optimize(ctx context.Context, cfg model.SearchConfiguration, req Request, judged map[string]float64) (model.ResultRecord, error) {
	outcomes := make([]variantOutcome, len(h.variants))
	ideal := idealOf(judged)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.limit)
	for i := range h.variants {
		pipeline := h.variants[i]
		g.Go(func() error {
			ids, err := search(gctx, h.exec, cfg, req, &pipeline)
			if err != nil {
				return fmt.Errorf("variant %s/%s %v: %w", pipeline.Normalization, pipeline.Combination, pipeline.Weights, err)
			}
			outcomes[i] = variantOutcome{docIDs: ids, ndcg: NDCG(ratingsOf(ids, judged), ideal, req.Size)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := -1
	for i, o := range outcomes {
		if len(o.docIDs) == 0 {
			continue
		}
		if best < 0 || o.ndcg > outcomes[best].ndcg {
			best = i
		}
	}
	if best < 0 {
		h.log.Debug("No hybrid variant returned hits", "config_id", cfg.ID, "query", security.SanitizeForLog(req.QueryText))
		return nil, nil
	}

	v := h.variants[best]
	return model.ResultRecord{
		model.KeySearchConfigurationID: cfg.ID,
		KeyNormalization:               v.Normalization,
		KeyCombination:                 v.Combination,
		KeyWeights:                     v.Weights,
		model.KeyDocIDs:                outcomes[best].docIDs,
		model.KeyMetrics:               PointwiseMetrics(outcomes[best].docIDs, judged, req.Size),
	}, nil
}
