package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

func judgmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judgments",
		Short: "Manage judgment sets",
	}
	cmd.AddCommand(judgmentsComputeCmd(), judgmentsShowCmd())
	return cmd
}

func judgmentsComputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute click-model judgments from UBI events",
		Long: `Compute derives COEC (clicks over expected clicks) judgments from a JSONL
file of UBI events and stores them as a new judgment set. Repeating a
computation with identical parameters returns the cached set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eventsPath, _ := cmd.Flags().GetString("events")
			name, _ := cmd.Flags().GetString("name")
			maxRank, _ := cmd.Flags().GetInt("max-rank")
			digits, _ := cmd.Flags().GetInt("rounding-digits")
			start, _ := cmd.Flags().GetString("start-date")
			end, _ := cmd.Flags().GetString("end-date")

			a, err := openApp(cmd, func(cfg *config.Config) {
				if eventsPath != "" {
					cfg.Judgment.UBIEventsPath = eventsPath
				}
				if !cmd.Flags().Changed("max-rank") {
					maxRank = cfg.Judgment.MaxRank
				}
				if !cmd.Flags().Changed("rounding-digits") {
					digits = cfg.Judgment.RoundingDigits
				}
			})
			if err != nil {
				return err
			}
			defer closeApp(a)

			params := model.ClickModelParameters{MaxRank: maxRank, RoundingDigits: digits}
			params, err = params.WithDateRange(start, end)
			if err != nil {
				return err
			}

			if !a.Config.Runner.Enabled {
				return errors.DisabledError("computing judgments")
			}
			j, err := a.Judgments.ComputeClickModel(context.Background(), name, params)
			if err != nil {
				return err
			}

			if outputFormat(cmd) == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(j)
			}
			pairs := 0
			for _, qr := range j.Ratings {
				pairs += len(qr.Ratings)
			}
			fmt.Printf("judgment %s (%s)\n", j.ID, j.Name)
			fmt.Printf("  queries: %d\n", len(j.Ratings))
			fmt.Printf("  ratings: %d\n", pairs)
			return nil
		},
	}

	cmd.Flags().StringP("events", "e", "", "UBI events JSONL file (overrides config)")
	cmd.Flags().String("name", "coec", "judgment set name")
	cmd.Flags().Int("max-rank", 20, "deepest rank considered")
	cmd.Flags().Int("rounding-digits", model.DefaultRoundingDigits, "digits kept in scores")
	cmd.Flags().String("start-date", "", "first event day (yyyy-mm-dd)")
	cmd.Flags().String("end-date", "", "last event day (yyyy-mm-dd)")
	return cmd
}

func judgmentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored judgment set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			j, err := a.Store.Judgments.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(j)
		},
	}
}
