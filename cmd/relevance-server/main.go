// Package main provides the search relevance server binary. It runs the
// scheduler and the job runner and exposes a gRPC health endpoint.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ricesearch/search-relevance/internal/app"
	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/metrics"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
	"github.com/ricesearch/search-relevance/internal/scheduler"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "relevance-server",
		Short: "Search relevance server - scheduled experiment runs",
		Long: `Search relevance server runs scheduled search quality experiments.

The server:
  - polls scheduled jobs and publishes a trigger when one is due
  - runs triggered experiments on a bounded worker pool
  - serves the gRPC health protocol on :50061 (configurable)
  - serves Prometheus metrics on :9091/metrics (0 disables)

Examples:
  relevance-server                       # Start with defaults
  relevance-server -c relevance.yaml     # Load a config file
  relevance-server --grpc-port 50071     # Custom health port`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().Int("grpc-port", 0, "gRPC health port (overrides config)")
	rootCmd.Flags().Int("metrics-port", -1, "metrics port, 0 disables (overrides config)")
	rootCmd.Flags().String("search-url", "", "search engine URL (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relevance-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	grpcPort, _ := cmd.Flags().GetInt("grpc-port")
	metricsPort, _ := cmd.Flags().GetInt("metrics-port")
	searchURL, _ := cmd.Flags().GetString("search-url")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if grpcPort > 0 {
		cfg.Port = grpcPort
	}
	if metricsPort >= 0 {
		cfg.MetricsPort = metricsPort
	}
	if searchURL != "" {
		cfg.Search.URL = searchURL
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	defer undo()
	if err != nil {
		log.WithError(err).Warn("Failed to set GOMAXPROCS")
	}

	log.Info("Starting search relevance server",
		"version", version,
		"storage", cfg.Storage.Type,
		"bus", cfg.Bus.Type,
		"workers", cfg.Runner.Workers,
	)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	dispatcher := scheduler.NewDispatcher(a.Bus, a.Runner, log)
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	if err := metrics.NewEventSubscriber(a.Metrics, a.Bus).Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribing metrics to bus: %w", err)
	}
	ticker := scheduler.NewTicker(a.Store.ScheduledJobs, a.Bus, cfg.Runner.TickInterval, log)
	if cfg.Runner.Enabled {
		ticker.Start(ctx)
		log.Info("Scheduler started", "tick_interval", cfg.Runner.TickInterval)
	} else {
		log.Warn("Workbench disabled, scheduler not started")
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr(), err)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.Info("Starting gRPC health server", "addr", cfg.GRPCAddr())
		if err := grpcSrv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			log.Error("gRPC server error", "error", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Starting metrics server", "addr", cfg.MetricsAddr())
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutdown signal received")

	healthSrv.Shutdown()
	ticker.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Waiting for triggered runs...")
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Shutdown timeout reached with runs in flight")
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error closing services")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
	grpcSrv.GracefulStop()
	log.Info("Server stopped")
	return nil
}
