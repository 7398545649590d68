package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/search-relevance/internal/bus"
	"github.com/ricesearch/search-relevance/internal/scheduler"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and replay the bus event log",
	}
	cmd.AddCommand(eventsListCmd(), eventsReplayCmd())
	return cmd
}

func eventsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logged bus events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceFlag, _ := cmd.Flags().GetString("since")
			topic, _ := cmd.Flags().GetString("topic")
			limit, _ := cmd.Flags().GetInt("limit")

			since, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				return err
			}

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			el, err := a.EventLog()
			if err != nil {
				return err
			}
			events, err := el.GetEvents(since, topic, limit)
			if err != nil {
				return err
			}

			if outputFormat(cmd) == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LOGGED\tTOPIC\tEVENT\tSOURCE\tCORRELATION")
			for _, le := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					le.Timestamp.Format(time.RFC3339), le.Topic, le.Event.ID, le.Event.Source, le.Event.CorrelationID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("since", "24h", "how far back to look (Go duration or RFC3339 time)")
	cmd.Flags().String("topic", "", "only this topic")
	cmd.Flags().Int("limit", 100, "maximum events to print (0 for all)")
	return cmd
}

func eventsReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish logged events, e.g. job triggers missed during an outage",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceFlag, _ := cmd.Flags().GetString("since")
			topic, _ := cmd.Flags().GetString("topic")
			wait, _ := cmd.Flags().GetDuration("wait")

			since, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				return err
			}

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer closeApp(a)

			el, err := a.EventLog()
			if err != nil {
				return err
			}

			ctx := context.Background()
			// A memory bus has no other subscribers, so replayed triggers
			// run in this process.
			var d *scheduler.Dispatcher
			if a.Config.Bus.Type == "memory" && topic == bus.TopicJobTrigger {
				d = scheduler.NewDispatcher(a.Bus, a.Runner, a.Log)
				if err := d.Start(ctx); err != nil {
					return err
				}
			}

			n, err := el.Replay(ctx, a.Bus, topic, since)
			if err != nil {
				return err
			}
			fmt.Printf("replayed %d events\n", n)

			if d != nil {
				waitCtx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()
				if err := d.AwaitTriggers(waitCtx, n); err != nil {
					return err
				}
				return d.Shutdown(waitCtx)
			}
			return nil
		},
	}
	cmd.Flags().String("since", "1h", "replay events logged after this (Go duration or RFC3339 time)")
	cmd.Flags().String("topic", bus.TopicJobTrigger, "topic to replay")
	cmd.Flags().Duration("wait", 10*time.Minute, "how long to wait for replayed runs on a memory bus")
	return cmd
}

// parseSince accepts a look-back duration ("90m") or an absolute time.
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: negative duration", value)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a duration or RFC3339 time", value)
	}
	return t, nil
}
