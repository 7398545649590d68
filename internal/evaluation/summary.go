package evaluation

import (
	"sort"

	"github.com/ricesearch/search-relevance/internal/model"
)

// Summary aggregates the metrics of one configuration across queries.
type Summary struct {
	ConfigID   string             `json:"searchConfigurationId"`
	QueryCount int                `json:"queryCount"`
	Means      map[string]float64 `json:"means"`
}

// Summarize averages every metric per configuration over the records of a
// completed experiment. Records without metrics are ignored.
func Summarize(records []model.ResultRecord) []Summary {
	byConfig := make(map[string]*Summary)
	counts := make(map[string]map[string]int)

	for _, rec := range records {
		id, _ := rec[model.KeySearchConfigurationID].(string)
		metrics := metricsOf(rec[model.KeyMetrics])
		if id == "" || len(metrics) == 0 {
			continue
		}

		s, ok := byConfig[id]
		if !ok {
			s = &Summary{ConfigID: id, Means: make(map[string]float64)}
			byConfig[id] = s
			counts[id] = make(map[string]int)
		}
		s.QueryCount++
		for name, v := range metrics {
			s.Means[name] += v
			counts[id][name]++
		}
	}

	out := make([]Summary, 0, len(byConfig))
	for id, s := range byConfig {
		for name := range s.Means {
			s.Means[name] /= float64(counts[id][name])
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigID < out[j].ConfigID })
	return out
}

// metricsOf accepts metrics as built in process or as decoded from JSON.
func metricsOf(v any) map[string]float64 {
	switch m := v.(type) {
	case map[string]float64:
		return m
	case map[string]any:
		out := make(map[string]float64, len(m))
		for k, x := range m {
			if f, ok := x.(float64); ok {
				out[k] = f
			}
		}
		return out
	}
	return nil
}
