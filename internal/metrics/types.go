// Package metrics keeps Prometheus-compatible counters and histograms for
// experiment runs and search traffic.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing count.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{name: name, help: help, labels: labels}
}

// Inc adds one.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.value.Add(delta)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name string
	help string
	bits atomic.Uint64
}

// NewGauge creates a gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

// Set replaces the value.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Value returns the current value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64

	mu     sync.Mutex
	counts []int64 // per bucket, last is +Inf; not cumulative
	sum    float64
	count  int64
}

// NewHistogram creates a histogram. Nil buckets default to millisecond
// latency buckets.
func NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: b,
		counts:  make([]int64, len(b)+1),
	}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.buckets, v)

	h.mu.Lock()
	h.counts[i]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// snapshot returns cumulative bucket counts, sum and count.
func (h *Histogram) snapshot() (cumulative []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cumulative = make([]int64, len(h.counts))
	var running int64
	for i, c := range h.counts {
		running += c
		cumulative[i] = running
	}
	return cumulative, h.sum, h.count
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// CounterVec is a family of counters partitioned by label values.
type CounterVec struct {
	name       string
	help       string
	labelNames []string

	mu       sync.RWMutex
	counters map[string]*Counter
}

// NewCounterVec creates a counter family.
func NewCounterVec(name, help string, labelNames ...string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labelNames, counters: make(map[string]*Counter)}
}

// WithLabels returns the counter for the label values, creating it on
// first use. It panics when the number of values does not match.
func (v *CounterVec) WithLabels(values ...string) *Counter {
	labels, key := bind(v.labelNames, values)

	v.mu.RLock()
	c, ok := v.counters[key]
	v.mu.RUnlock()
	if ok {
		return c
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.counters[key]; ok {
		return c
	}
	c = NewCounter(v.name, v.help, labels)
	v.counters[key] = c
	return c
}

func (v *CounterVec) all() []*Counter {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.counters))
	for k := range v.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Counter, len(keys))
	for i, k := range keys {
		out[i] = v.counters[k]
	}
	return out
}

// HistogramVec is a family of histograms partitioned by label values.
type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64

	mu         sync.RWMutex
	histograms map[string]*Histogram
}

// NewHistogramVec creates a histogram family.
func NewHistogramVec(name, help string, buckets []float64, labelNames ...string) *HistogramVec {
	return &HistogramVec{
		name:       name,
		help:       help,
		labelNames: labelNames,
		buckets:    buckets,
		histograms: make(map[string]*Histogram),
	}
}

// WithLabels returns the histogram for the label values.
func (v *HistogramVec) WithLabels(values ...string) *Histogram {
	labels, key := bind(v.labelNames, values)

	v.mu.RLock()
	h, ok := v.histograms[key]
	v.mu.RUnlock()
	if ok {
		return h
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok := v.histograms[key]; ok {
		return h
	}
	h = NewHistogram(v.name, v.help, labels, v.buckets)
	v.histograms[key] = h
	return h
}

func (v *HistogramVec) all() []*Histogram {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.histograms))
	for k := range v.histograms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Histogram, len(keys))
	for i, k := range keys {
		out[i] = v.histograms[k]
	}
	return out
}

// bind pairs label names with values and builds a stable map key.
func bind(names, values []string) (map[string]string, string) {
	if len(values) != len(names) {
		panic(fmt.Sprintf("expected %d label values, got %d", len(names), len(values)))
	}
	labels := make(map[string]string, len(names))
	var key strings.Builder
	for i, name := range names {
		labels[name] = values[i]
		if i > 0 {
			key.WriteByte(0)
		}
		key.WriteString(values[i])
	}
	return labels, key.String()
}
