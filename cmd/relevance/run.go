package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/evaluation"
	"github.com/ricesearch/search-relevance/internal/experiment"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment once and print its results",
		Long: `Run loads a job file, stores the query sets, search configurations and
judgments it carries, runs the job once and prints the outcome.

A job with an experiment_id re-runs that experiment. A job without one
creates a new experiment from its type, query set, configurations and size.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobPath, _ := cmd.Flags().GetString("job")
			searchURL, _ := cmd.Flags().GetString("search-url")

			jf, err := loadJobFile(jobPath)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, func(cfg *config.Config) {
				if searchURL != "" {
					cfg.Search.URL = searchURL
				}
			})
			if err != nil {
				return err
			}
			defer closeApp(a)
			if !a.Config.Runner.Enabled {
				return errors.DisabledError("running experiments")
			}

			ctx := context.Background()
			if err := jf.seed(ctx, a.Store); err != nil {
				return fmt.Errorf("storing job documents: %w", err)
			}

			params := jf.Job
			if params.Replay() {
				exp := params.NewExperiment(uuid.NewString(), time.Now())
				if err := a.Store.Experiments.Put(ctx, exp.ID, exp); err != nil {
					return err
				}
				params.ExperimentID = exp.ID
			}

			runErr := a.Runner.Run(ctx, params)
			exp, err := a.Store.Experiments.Get(ctx, params.ExperimentID)
			if err != nil {
				if runErr != nil {
					return runErr
				}
				return err
			}
			if err := printExperiment(os.Stdout, outputFormat(cmd), exp); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringP("job", "j", "job.yaml", "job file")
	cmd.Flags().String("search-url", "", "search engine URL (overrides config)")
	return cmd
}

func printExperiment(w io.Writer, format string, exp *model.Experiment) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"experiment": exp,
			"summary":    evaluation.Summarize(exp.Results),
		})
	}

	fmt.Fprintf(w, "experiment %s (%s): %s\n", exp.ID, exp.Type, exp.Status)
	if exp.Status == model.StatusError {
		if msg, ok := exp.ErrorMessage(); ok {
			fmt.Fprintf(w, "  error: %s\n", msg)
		}
		return nil
	}
	fmt.Fprintf(w, "  records: %d\n\n", len(exp.Results))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if exp.Type == model.PairwiseComparison {
		fmt.Fprintln(tw, "QUERY\tCONFIG\tCOMPARED WITH\tJACCARD\tRBO50\tRBO90\tFREQ WEIGHTED")
		for _, rec := range exp.Results {
			query, _ := rec[model.KeyQueryText].(string)
			config, _ := rec[model.KeySearchConfigurationID].(string)
			for _, c := range comparisons(rec) {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%.4f\t%.4f\t%.4f\t%.4f\n", query, config, c[experiment.KeyComparedWith],
					num(c["jaccard"]), num(c["rbo50"]), num(c["rbo90"]), num(c["frequencyWeighted"]))
			}
		}
		return nil
	}

	for _, s := range evaluation.Summarize(exp.Results) {
		fmt.Fprintf(tw, "%s\t(%d queries)\n", s.ConfigID, s.QueryCount)
		names := make([]string, 0, len(s.Means))
		for name := range s.Means {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(tw, "  %s\t%.4f\n", name, s.Means[name])
		}
	}
	return nil
}

// comparisons reads the pairwise comparison list in its in-process or
// decoded form.
func comparisons(rec model.ResultRecord) []map[string]any {
	switch v := rec[experiment.KeyPairwiseComparison].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, x := range v {
			if m, ok := x.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}
