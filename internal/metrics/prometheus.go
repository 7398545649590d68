package metrics

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WritePrometheus writes every metric in the Prometheus text exposition
// format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	m.sample()

	var sb strings.Builder
	writeCounterVec(&sb, m.ExperimentRuns)
	writeHistogramVec(&sb, m.ExperimentDuration)
	writeCounterVec(&sb, m.SearchRequests)
	writeHistogram(&sb, m.SearchLatency, true)
	writeCounterVec(&sb, m.BusEvents)
	writeGauge(&sb, m.PoolRunning)
	writeGauge(&sb, m.Goroutines)
	writeGauge(&sb, m.UptimeSeconds)

	_, err := io.WriteString(w, sb.String())
	return err
}

func header(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	header(sb, g.name, g.help, "gauge")
	fmt.Fprintf(sb, "%s %s\n", g.name, formatFloat(g.Value()))
}

func writeCounterVec(sb *strings.Builder, v *CounterVec) {
	counters := v.all()
	if len(counters) == 0 {
		return
	}
	header(sb, v.name, v.help, "counter")
	for _, c := range counters {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, formatLabels(c.labels, ""), c.Value())
	}
}

func writeHistogramVec(sb *strings.Builder, v *HistogramVec) {
	hs := v.all()
	if len(hs) == 0 {
		return
	}
	header(sb, v.name, v.help, "histogram")
	for _, h := range hs {
		writeHistogram(sb, h, false)
	}
}

func writeHistogram(sb *strings.Builder, h *Histogram, withHeader bool) {
	if withHeader {
		header(sb, h.name, h.help, "histogram")
	}
	cumulative, sum, count := h.snapshot()
	for i, bound := range h.buckets {
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(h.labels, formatFloat(bound)), cumulative[i])
	}
	fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(h.labels, "+Inf"), cumulative[len(cumulative)-1])
	fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, formatLabels(h.labels, ""), formatFloat(sum))
	fmt.Fprintf(sb, "%s_count%s %d\n", h.name, formatLabels(h.labels, ""), count)
}

// formatLabels renders {k="v",...} in key order. A non-empty le is
// appended as the bucket bound.
func formatLabels(labels map[string]string, le string) string {
	if len(labels) == 0 && le == "" {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+`="`+escape(labels[k])+`"`)
	}
	if le != "" {
		parts = append(parts, `le="`+le+`"`)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
