package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// Metrics holds the server's metrics.
type Metrics struct {
	// Experiment runs
	ExperimentRuns     *CounterVec   // labels: type, status
	ExperimentDuration *HistogramVec // labels: type

	// Search traffic
	SearchRequests *CounterVec // labels: outcome (ok or error code)
	SearchLatency  *Histogram

	// Bus
	BusEvents *CounterVec // labels: topic

	// Sampled on scrape
	PoolRunning   *Gauge
	Goroutines    *Gauge
	UptimeSeconds *Gauge

	poolRunning func() int64
	start       time.Time
}

// New creates the metric set.
func New() *Metrics {
	return &Metrics{
		ExperimentRuns: NewCounterVec(
			"relevance_experiment_runs_total",
			"Experiment runs by type and terminal status",
			"type", "status",
		),
		ExperimentDuration: NewHistogramVec(
			"relevance_experiment_duration_ms",
			"Experiment run duration in milliseconds",
			[]float64{100, 500, 1000, 5000, 10000, 30000, 60000, 300000, 900000},
			"type",
		),
		SearchRequests: NewCounterVec(
			"relevance_search_requests_total",
			"Search requests sent to the engine by outcome",
			"outcome",
		),
		SearchLatency: NewHistogram(
			"relevance_search_latency_ms",
			"Search request latency in milliseconds",
			nil, nil,
		),
		BusEvents: NewCounterVec(
			"relevance_bus_events_total",
			"Experiment events observed on the bus by topic",
			"topic",
		),
		PoolRunning:   NewGauge("relevance_pool_running_tasks", "Tasks running on the shared worker pool"),
		Goroutines:    NewGauge("relevance_goroutines", "Number of goroutines"),
		UptimeSeconds: NewGauge("relevance_uptime_seconds", "Seconds since the process started"),
		start:         time.Now(),
	}
}

// TrackPool samples running into PoolRunning on every scrape.
func (m *Metrics) TrackPool(running func() int64) {
	m.poolRunning = running
}

func (m *Metrics) sample() {
	if m.poolRunning != nil {
		m.PoolRunning.Set(float64(m.poolRunning()))
	}
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
	m.UptimeSeconds.Set(time.Since(m.start).Seconds())
}

// RecordExperiment records one terminal run.
func (m *Metrics) RecordExperiment(experimentType, status string, took time.Duration) {
	m.ExperimentRuns.WithLabels(experimentType, status).Inc()
	m.ExperimentDuration.WithLabels(experimentType).Observe(float64(took.Milliseconds()))
}

// RecordSearch records one engine request.
func (m *Metrics) RecordSearch(took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errors.Code(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	m.SearchRequests.WithLabels(outcome).Inc()
	m.SearchLatency.Observe(float64(took.Microseconds()) / 1000)
}

// Handler serves the metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = m.WritePrometheus(w)
	})
}
