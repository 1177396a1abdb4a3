package stats

import (
	"math"
	"sort"
)

// Percentile calculates the percentile value over values (p should be between 0 and 100).
// Uses linear interpolation between the two nearest order statistics.
// Returns 0 for an empty input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	// Make a copy and sort
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// Calculate index
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between lower and upper
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Summary holds aggregate latency statistics over one sample set.
// Failed shots are recorded as non-finite sample values; they count toward
// Count and ErrorCount but are excluded from the percentile computation.
// When no finite samples exist, Avg/percentiles/Min/Max carry +Inf so the
// condition is visible in the result instead of raising.
type Summary struct {
	Count       int
	FiniteCount int
	ErrorCount  int
	AvgMs       float64
	P50Ms       float64
	P90Ms       float64
	P95Ms       float64
	P99Ms       float64
	MinMs       float64
	MaxMs       float64
}

// Available reports whether at least one finite sample was collected.
func (s Summary) Available() bool {
	return s.FiniteCount > 0
}

// Summarize computes latency statistics over samples. Non-finite entries
// (NaN, +/-Inf) are treated as failed shots: retained in Count and ErrorCount,
// excluded from the finite subset. Never panics, including on empty input.
func Summarize(samples []float64) Summary {
	s := Summary{Count: len(samples)}

	finite := make([]float64, 0, len(samples))
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
	}
	s.FiniteCount = len(finite)
	s.ErrorCount = s.Count - s.FiniteCount

	if s.FiniteCount == 0 {
		unavailable := math.Inf(1)
		s.AvgMs = unavailable
		s.P50Ms = unavailable
		s.P90Ms = unavailable
		s.P95Ms = unavailable
		s.P99Ms = unavailable
		s.MinMs = unavailable
		s.MaxMs = unavailable
		return s
	}

	var sum float64
	min := finite[0]
	max := finite[0]
	for _, v := range finite {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	s.AvgMs = sum / float64(s.FiniteCount)
	s.P50Ms = Percentile(finite, 50)
	s.P90Ms = Percentile(finite, 90)
	s.P95Ms = Percentile(finite, 95)
	s.P99Ms = Percentile(finite, 99)
	s.MinMs = min
	s.MaxMs = max
	return s
}

// SeriesStats holds the aggregate of one resource time series.
type SeriesStats struct {
	Avg float64
	P95 float64
	Max float64
}

// AggregateSeries computes {avg, p95, max} over a resource series.
// Returns zeros for an empty series; the distinction between "series of
// zeros" and "no samples collected" is carried by the sample count at the
// summary level.
func AggregateSeries(values []float64) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{}
	}

	var sum float64
	max := values[0]
	for _, v := range values {
		sum += v
		if v > max {
			max = v
		}
	}

	return SeriesStats{
		Avg: sum / float64(len(values)),
		P95: Percentile(values, 95),
		Max: max,
	}
}
