package evaluation

import (
	"math"
	"sort"
)

// NDCG calculates Normalized Discounted Cumulative Gain at K. ideal holds
// every known rating for the query; the ideal DCG is computed from its top
// K. When ideal is nil the retrieved relevances are used instead.
func NDCG(relevances []float64, ideal []float64, k int) float64 {
	if ideal == nil {
		ideal = relevances
	}
	if k <= 0 {
		return 0
	}

	idcg := dcg(sortedDesc(ideal), k)
	if idcg == 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

func dcg(relevances []float64, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += relevances[i] / math.Log2(float64(i+2))
	}
	return sum
}

func sortedDesc(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return sorted
}

// Recall calculates Recall at K against totalRelevant known relevant documents.
func Recall(relevances []float64, k int, threshold float64, totalRelevant int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if totalRelevant == 0 {
		return 0
	}

	relevantInK := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			relevantInK++
		}
	}

	return float64(relevantInK) / float64(totalRelevant)
}

// Precision calculates Precision at K
func Precision(relevances []float64, k int, threshold float64) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k == 0 {
		return 0
	}

	relevant := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			relevant++
		}
	}

	return float64(relevant) / float64(k)
}

// MRR calculates the reciprocal rank of the first relevant result.
func MRR(relevances []float64, threshold float64) float64 {
	for i, r := range relevances {
		if r >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision over the top K.
func AveragePrecision(relevances []float64, k int, threshold float64) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}

	relevant := 0
	sumPrecision := 0.0

	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	if relevant == 0 {
		return 0
	}
	return sumPrecision / float64(relevant)
}

// Coverage is the fraction of the top K documents that carry a judgment.
func Coverage(docIDs []string, judged map[string]float64, k int) float64 {
	if k > len(docIDs) {
		k = len(docIDs)
	}
	if k == 0 {
		return 0
	}

	covered := 0
	for _, id := range docIDs[:k] {
		if _, ok := judged[id]; ok {
			covered++
		}
	}
	return float64(covered) / float64(k)
}

// Jaccard is |A ∩ B| / |A ∪ B| over the two result sets. Two empty lists
// agree fully.
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	union := len(setA)
	inter := 0
	for id := range setB {
		if _, ok := setA[id]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// RBO is extrapolated rank-biased overlap with persistence p. Agreement at
// the top of the lists weighs more; identical lists score 1.
func RBO(a, b []string, p float64) float64 {
	depth := len(a)
	if len(b) > depth {
		depth = len(b)
	}
	if depth == 0 {
		return 1
	}

	seenA := make(map[string]struct{}, len(a))
	seenB := make(map[string]struct{}, len(b))
	overlap := 0
	sum := 0.0
	agreement := 0.0

	add := func(id string, own, other map[string]struct{}) {
		if _, dup := own[id]; dup {
			return
		}
		own[id] = struct{}{}
		if _, ok := other[id]; ok {
			overlap++
		}
	}

	for d := 1; d <= depth; d++ {
		if d <= len(a) {
			add(a[d-1], seenA, seenB)
		}
		if d <= len(b) {
			add(b[d-1], seenB, seenA)
		}
		agreement = float64(overlap) / float64(d)
		sum += agreement * math.Pow(p, float64(d-1))
	}

	return (1-p)*sum + agreement*math.Pow(p, float64(depth))
}

// FrequencyWeighted weighs every document by the reciprocal of its rank in
// each list and returns the share of that weight carried by documents both
// lists returned.
func FrequencyWeighted(a, b []string) float64 {
	weightA := rankWeights(a)
	weightB := rankWeights(b)

	shared, total := 0.0, 0.0
	for id, w := range weightA {
		total += w
		if _, ok := weightB[id]; ok {
			shared += w
		}
	}
	for id, w := range weightB {
		total += w
		if _, ok := weightA[id]; ok {
			shared += w
		}
	}
	if total == 0 {
		return 1
	}
	return shared / total
}

func rankWeights(ids []string) map[string]float64 {
	w := make(map[string]float64, len(ids))
	for i, id := range ids {
		if _, ok := w[id]; !ok {
			w[id] = 1 / float64(i+1)
		}
	}
	return w
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
