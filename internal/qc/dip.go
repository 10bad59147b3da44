package qc

import (
	"math"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/common"
)

// DipInterval is a detected RH dip: Start is the sample where humidity
// bottoms out, End the first sample where it has recovered.
type DipInterval struct {
	Start int
	End   int
}

// DetectRHDips scans for the sharp humidity dip-and-recovery signature
// the sensor leaves right after a heater purge. A dip at i needs a flat
// stretch shortly before it, a fall of at least DropThreshold relative
// to the preceding three samples, and a recovery of the same magnitude
// within SearchHorizon samples and RecoveryTime seconds. The scan takes
// the first qualifying recovery, so repeated runs give identical
// results.
func DetectRHDips(rh []float64, times []time.Time, p DipParams) []DipInterval {
	var dips []DipInterval
	if len(rh) != len(times) {
		return dips
	}

	flat := DetectFlat(rh, p.FlatWindow, p.FlatThreshold)

	for i := 3; i < len(rh)-10; i++ {
		if !anyFlat(flat, maxInt(0, i-p.FlatWindow), i) {
			continue
		}
		if saturatedBefore(rh, i, p.SaturationBound) {
			continue
		}
		deltaDown := common.Max(rh[i-3:i]) - rh[i]
		if math.IsNaN(deltaDown) || deltaDown < p.DropThreshold {
			continue
		}
		limit := minInt(i+p.SearchHorizon, len(rh))
		for j := i + 1; j < limit; j++ {
			deltaUp := rh[j] - rh[i]
			if deltaUp >= deltaDown {
				if times[j].Sub(times[i]) <= p.RecoveryTime {
					dips = append(dips, DipInterval{Start: i, End: j})
				}
				break
			}
		}
	}
	return dips
}

// saturatedBefore reports whether any of the ten samples up to and
// including i sit at or above bound. A drop out of saturation is the
// air drying, not a purge artefact.
func saturatedBefore(rh []float64, i int, bound float64) bool {
	for k := maxInt(0, i-9); k <= i; k++ {
		if rh[k] >= bound {
			return true
		}
	}
	return false
}

func anyFlat(mask FlatMask, lo, hi int) bool {
	for k := lo; k < hi; k++ {
		if mask[k] {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
