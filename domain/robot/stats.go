package robot

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencySummary describes cycle durations of a run.
type LatencySummary struct {
	Cycles int
	Mean   time.Duration
	StdDev time.Duration
	P50    time.Duration
	P95    time.Duration
	Max    time.Duration
}

// latencyRecorder keeps cycle durations in milliseconds.
type latencyRecorder struct {
	samples []float64
}

func (r *latencyRecorder) add(d time.Duration) {
	r.samples = append(r.samples, float64(d)/float64(time.Millisecond))
}

func (r *latencyRecorder) summary() LatencySummary {
	n := len(r.samples)
	if n == 0 {
		return LatencySummary{}
	}
	sorted := append([]float64(nil), r.samples...)
	sort.Float64s(sorted)
	ms := func(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }
	out := LatencySummary{
		Cycles: n,
		Mean:   ms(stat.Mean(sorted, nil)),
		P50:    ms(stat.Quantile(0.5, stat.Empirical, sorted, nil)),
		P95:    ms(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
		Max:    ms(sorted[n-1]),
	}
	if n > 1 {
		out.StdDev = ms(stat.StdDev(sorted, nil))
	}
	return out
}
