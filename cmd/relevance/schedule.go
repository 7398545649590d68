package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ricesearch/search-relevance/internal/model"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled experiment runs",
	}
	cmd.AddCommand(scheduleAddCmd(), scheduleDeleteCmd(), scheduleListCmd(), scheduleTriggerCmd(),
		scheduleEnableCmd("pause", false), scheduleEnableCmd("resume", true))
	return cmd
}

func scheduleAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule an experiment to re-run every interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			experimentID, _ := cmd.Flags().GetString("experiment")
			interval, _ := cmd.Flags().GetString("interval")
			jitter, _ := cmd.Flags().GetFloat64("jitter")

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx := context.Background()
			var job *model.JobParameters
			if jitter > 0 {
				job, err = a.Schedules.Add(ctx, model.JobParameters{
					ExperimentID: experimentID,
					Interval:     interval,
					Jitter:       jitter,
				})
			} else {
				job, err = a.Schedules.Post(ctx, experimentID, interval)
			}
			if err != nil {
				return err
			}
			fmt.Println(job.JobID)
			return nil
		},
	}
	cmd.Flags().StringP("experiment", "e", "", "experiment id")
	cmd.Flags().StringP("interval", "i", "24h", "run interval (Go duration)")
	cmd.Flags().Float64("jitter", 0, "random delay as a fraction of the interval")
	_ = cmd.MarkFlagRequired("experiment")
	return cmd
}

func scheduleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return a.Schedules.Delete(context.Background(), args[0])
		},
	}
}

// scheduleEnableCmd builds pause (enabled=false) or resume.
func scheduleEnableCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			job, err := a.Schedules.SetEnabled(context.Background(), args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", job.JobID, job.Enabled)
			return nil
		},
	}
}

func scheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			jobs, err := a.Schedules.List(context.Background())
			if err != nil {
				return err
			}
			if outputFormat(cmd) == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "ID\tEXPERIMENT\tSCHEDULE\tENABLED\tLOCK")
			for _, j := range jobs {
				target := j.ExperimentID
				if j.Replay() {
					target = "(new " + string(j.ExperimentType) + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%ds\n", j.JobID, target, j.Interval, j.Enabled, j.LockDurationSeconds)
			}
			return nil
		},
	}
}

func scheduleTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <job-id>",
		Short: "Publish a one-off run of a scheduled job",
		Long: `Trigger publishes the job on the trigger topic. A server sharing the same
bus picks it up; with the in-memory bus nothing outside this process sees it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return a.Schedules.Trigger(context.Background(), args[0])
		},
	}
}
