package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/search-relevance/internal/app"
	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relevance",
		Short: "Search relevance workbench CLI",
		Long: `Run search quality experiments, compute click-model judgments and manage
scheduled experiment runs.

Run 'relevance run --job job.yaml' to evaluate a job file once.
Run 'relevance --help' for available commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		runCmd(),
		judgmentsCmd(),
		scheduleCmd(),
		eventsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relevance %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

// openApp loads configuration and wires the components. Logs go to stderr
// so stdout carries only command output.
func openApp(cmd *cobra.Command, override func(*config.Config)) (*app.App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if override != nil {
		override(cfg)
	}
	return app.New(cfg, logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format))
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = a.Close(ctx)
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("format")
	return format
}
