package qc

import (
	"log"
	"sort"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/common"
	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// Period is a half-open [Start, End) sample index range.
type Period struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ScoredPeriod is a candidate purge period with its stability score.
// Lower scores mean flatter signal and a more convincing purge.
type ScoredPeriod struct {
	Period
	RHStd   float64
	TempStd float64
	Score   float64
}

// SelectPurgePeriods turns the flat mask into the day's purge periods:
// collapse the mask into runs, pad each run by half the minimum purge
// duration on both sides, score by variability, drop candidates that
// start in blackout hours, and keep the best one or two depending on
// which firmware schedule the day falls under. Pre-cutover days that
// yield a single period get a mirrored twin 12 hours away, since those
// firmwares purged twice a day on a fixed cycle.
func SelectPurgePeriods(mask FlatMask, day *timeseries.DaySeries, p Params) []Period {
	minDurSamples := day.SamplesPer(time.Duration(p.MinPurgeDurationMinutes) * time.Minute)
	candidates := expandRuns(maskRuns(mask), minDurSamples/2, len(mask))
	if len(candidates) == 0 {
		return nil
	}

	scored := scorePeriods(candidates, day)
	filtered := filterBlackout(scored, day.Times(), p.Blackout)
	if len(filtered) == 0 {
		// Every candidate started in a blackout band. Unusual days
		// (clock drift, maintenance) still purge, so fall back to the
		// unfiltered list rather than losing the day.
		log.Printf("qc: all %d purge candidates start in blackout hours, keeping unfiltered set", len(scored))
		filtered = scored
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score < filtered[j].Score })

	keep := 2
	if !day.Date().Before(p.CutoverDate) {
		keep = 1
	}
	if len(filtered) > keep {
		filtered = filtered[:keep]
	}

	periods := make([]Period, 0, len(filtered)+1)
	for _, sp := range filtered {
		periods = append(periods, sp.Period)
	}

	if keep == 2 && len(periods) == 1 {
		if twin, ok := mirrorPeriod(periods[0], day); ok {
			periods = append(periods, twin)
		}
	}
	return periods
}

// maskRuns collapses a boolean mask into contiguous true runs.
func maskRuns(mask FlatMask) []Period {
	var runs []Period
	start := -1
	for i, v := range mask {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			runs = append(runs, Period{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Period{Start: start, End: len(mask)})
	}
	return runs
}

// expandRuns pads each run by half samples on both sides, clipped to
// [0, n). The detector only fires once the window is fully inside the
// purge, so the true purge extends past the flat run in both directions.
func expandRuns(runs []Period, half, n int) []Period {
	out := make([]Period, 0, len(runs))
	for _, r := range runs {
		out = append(out, Period{
			Start: maxInt(0, r.Start-half),
			End:   minInt(n, r.End+half),
		})
	}
	return out
}

func scorePeriods(periods []Period, day *timeseries.DaySeries) []ScoredPeriod {
	rh := day.Humidity()
	temps := day.Temperature()
	scored := make([]ScoredPeriod, 0, len(periods))
	for _, per := range periods {
		rhStd := common.NaNStd(rh[per.Start:per.End])
		tempStd := common.NaNStd(temps[per.Start:per.End])
		scored = append(scored, ScoredPeriod{
			Period:  per,
			RHStd:   rhStd,
			TempStd: tempStd,
			Score:   rhStd*100 + tempStd,
		})
	}
	return scored
}

func filterBlackout(scored []ScoredPeriod, times []time.Time, pol BlackoutPolicy) []ScoredPeriod {
	out := make([]ScoredPeriod, 0, len(scored))
	for _, sp := range scored {
		if pol.Excludes(times[sp.Start].UTC().Hour()) {
			continue
		}
		out = append(out, sp)
	}
	return out
}

// mirrorPeriod projects a period 12 hours across the day: forward when
// the detected purge was in the morning, backward otherwise. Returns
// false when the twin would not fit inside the series.
func mirrorPeriod(per Period, day *timeseries.DaySeries) (Period, bool) {
	twelveH := day.SamplesPer(12 * time.Hour)
	if twelveH <= 0 {
		return Period{}, false
	}
	length := per.End - per.Start
	startTime := day.Times()[per.Start].UTC()
	noon := time.Date(startTime.Year(), startTime.Month(), startTime.Day(), 12, 0, 0, 0, time.UTC)

	if startTime.Before(noon) {
		start := per.Start + twelveH
		if start+length <= day.Len() {
			return Period{Start: start, End: start + length}, true
		}
		return Period{}, false
	}
	start := per.Start - twelveH
	if start >= 0 {
		return Period{Start: start, End: start + length}, true
	}
	return Period{}, false
}
