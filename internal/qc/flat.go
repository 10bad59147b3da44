package qc

import (
	"math"

	"github.com/chilbolton/hmp155-qc/internal/common"
)

// FlatMask marks the samples sitting inside a low-variability stretch.
type FlatMask []bool

// DetectFlat computes a centered rolling population standard deviation
// over values and marks samples where it falls below threshold. For an
// even window the extra sample lands on the left of center. Samples
// whose window is truncated by the series edge, or contains a NaN, get
// no verdict and stay false.
func DetectFlat(values []float64, window int, threshold float64) FlatMask {
	mask := make(FlatMask, len(values))
	if window < 1 || window > len(values) {
		return mask
	}
	left := window / 2
	right := window - left - 1
	for i := range values {
		lo := i - left
		hi := i + right
		if lo < 0 || hi >= len(values) {
			continue
		}
		std := windowStd(values[lo : hi+1])
		if math.IsNaN(std) {
			continue
		}
		mask[i] = std < threshold
	}
	return mask
}

// windowStd is the population std of a full window, NaN if any sample
// is NaN.
func windowStd(win []float64) float64 {
	for _, v := range win {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	return common.NaNStd(win)
}

// ExcludeSaturated clears mask entries where RH is at or above max.
// Saturated air holds RH flat for meteorological reasons, not because
// the sensor is purging.
func ExcludeSaturated(mask FlatMask, rh []float64, max float64) FlatMask {
	out := make(FlatMask, len(mask))
	for i, flat := range mask {
		out[i] = flat && i < len(rh) && rh[i] < max
	}
	return out
}
