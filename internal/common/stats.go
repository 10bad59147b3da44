package common

import (
	"math"
	"sort"
)

// Median returns the median of xs, averaging the two middle values for
// even-length input. It returns NaN for empty input.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// NaNStd returns the population standard deviation of xs ignoring NaN
// entries. It returns NaN when no finite values remain.
func NaNStd(xs []float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	mean := sum / float64(n)
	var sq float64
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n))
}

// Max returns the largest value in xs. A single NaN poisons the result,
// matching elementwise max semantics.
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}
