package telemetry

import (
	"math"
	"sort"
)

// Scorecard summarizes one metric over a telemetry window. Percentiles
// interpolate linearly between ranks of the sorted sample set.
type Scorecard struct {
	Latest float64 `json:"latest"`
	Mean   float64 `json:"mean"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// BuildScorecard computes statistics over values in arrival order.
// An empty window yields nil rather than an error.
func BuildScorecard(values []float64) *Scorecard {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return &Scorecard{
		Latest: round2(values[len(values)-1]),
		Mean:   round2(sum / float64(len(values))),
		P50:    round2(percentile(sorted, 0.5)),
		P95:    round2(percentile(sorted, 0.95)),
		Min:    round2(sorted[0]),
		Max:    round2(sorted[len(sorted)-1]),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	position := float64(len(sorted)-1) * p
	lower := int(position)
	upper := lower + 1
	if upper > len(sorted)-1 {
		upper = len(sorted) - 1
	}
	weight := position - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
