// Package qc implements the purge-cycle quality-control pipeline for
// Vaisala HMP155 temperature and relative humidity series: flat-region
// detection, purge-period selection, RH dip detection, cross-day
// corroboration and the final per-sample flag assembly.
package qc

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/corrections"
	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// ErrNoTimeAxis marks a day whose series cannot be processed at all:
// no samples, unusable timestamps, or too few points to estimate the
// sampling interval.
var ErrNoTimeAxis = errors.New("series has no usable time axis")

// Engine runs the full QC pipeline for one day at a time.
type Engine struct {
	params Params
}

func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

func (e *Engine) Params() Params { return e.params }

// RunOptions carries the per-day inputs that are not part of the series
// itself.
type RunOptions struct {
	// BadTemperature and BadHumidity are operator-declared bad
	// intervals. They are applied last and unconditionally.
	BadTemperature []corrections.BadInterval
	BadHumidity    []corrections.BadInterval

	// PreexistingBad marks samples an earlier QC stage already
	// condemned. May be nil.
	PreexistingBad []bool
}

// Result is the QC outcome for one day.
type Result struct {
	TempFlags    FlagSeq
	RHFlags      FlagSeq
	PurgePeriods []Period
	Dips         []DipInterval

	// RescuedFromPrevious is set when the purge periods were not
	// detected on this day but copied across from the previous one.
	RescuedFromPrevious bool

	// TempMeta and RHMeta are the published declarations decoding the
	// two flag sequences.
	TempMeta FlagMetadata
	RHMeta   FlagMetadata

	IntervalSeconds float64
	WindowSamples   int
}

// Run executes the pipeline: detect flat RH regions, select purge
// periods (falling back to the previous day's when nothing is found),
// detect and corroborate RH dips, then assemble the two flag
// sequences. prev may be nil, in which case the cross-day checks
// degrade to their permissive defaults.
func (e *Engine) Run(day *timeseries.DaySeries, prev *DayContext, opts RunOptions) (*Result, error) {
	if day == nil || !day.HasTimeAxis() {
		return nil, ErrNoTimeAxis
	}
	interval := day.MedianIntervalSeconds()
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %d samples is too few to estimate the sampling interval", ErrNoTimeAxis, day.Len())
	}
	window := day.SamplesPer(time.Duration(e.params.WindowMinutes) * time.Minute)
	if window < 1 {
		return nil, fmt.Errorf("%d-minute flat window spans no samples at a median interval of %.0fs", e.params.WindowMinutes, interval)
	}

	rh := day.Humidity()
	rhFlat := ExcludeSaturated(DetectFlat(rh, window, e.params.RHStdThreshold), rh, e.params.RHSaturationMax)

	periods := SelectPurgePeriods(rhFlat, day, e.params)
	rescued := false
	if len(periods) == 0 {
		if mapped := RescueFromPrevious(day, prev); len(mapped) > 0 {
			periods = mapped
			rescued = true
			log.Printf("qc: %s: no purge detected, mapped %d period(s) across from previous day",
				day.Date().Format("2006-01-02"), len(mapped))
		}
	}

	dips := DetectRHDips(rh, day.Times(), e.params.Dip)
	var expected []ClockWindow
	if prev != nil {
		expected = ExpectedWindows(prev.Series, e.params)
	}
	accepted := CorroborateDips(dips, day, periods, expected, e.params)

	tempFlags, rhFlags := AssignFlags(day, FlagAssignment{
		PurgePeriods:       periods,
		Dips:               accepted,
		BadTemperature:     opts.BadTemperature,
		BadHumidity:        opts.BadHumidity,
		PreexistingBad:     opts.PreexistingBad,
		RecoverySamples:    day.SamplesPer(time.Duration(e.params.RecoveryMinutes) * time.Minute),
		PreDipSamples:      day.SamplesPer(time.Duration(e.params.MinPurgeDurationMinutes) * time.Minute),
		FlagPurgeBeforeDip: e.params.FlagPurgeBeforeDip,
	})

	return &Result{
		TempFlags:           tempFlags,
		RHFlags:             rhFlags,
		PurgePeriods:        periods,
		Dips:                accepted,
		RescuedFromPrevious: rescued,
		TempMeta:            TemperatureFlagMetadata(),
		RHMeta:              HumidityFlagMetadata(),
		IntervalSeconds:     interval,
		WindowSamples:       window,
	}, nil
}

// FlagAssignment bundles everything AssignFlags folds into the flag
// sequences.
type FlagAssignment struct {
	PurgePeriods   []Period
	Dips           []DipInterval
	BadTemperature []corrections.BadInterval
	BadHumidity    []corrections.BadInterval
	PreexistingBad []bool

	RecoverySamples    int
	PreDipSamples      int
	FlagPurgeBeforeDip bool
}

// AssignFlags builds the temperature and humidity flag sequences. Both
// start as good_data seeded with any preexisting bad samples. Purge
// periods raise both variables to purge; each period is followed by an
// RH recovery tail; accepted dips raise RH to recovery over their
// interior. Operator bad intervals are applied last and overwrite
// everything, preserving their file order.
func AssignFlags(day *timeseries.DaySeries, a FlagAssignment) (FlagSeq, FlagSeq) {
	n := day.Len()
	times := day.Times()
	tempFlags := NewFlagSeq(n, a.PreexistingBad)
	rhFlags := NewFlagSeq(n, a.PreexistingBad)

	for _, per := range a.PurgePeriods {
		start, end := clampRange(per.Start, per.End, n, "purge period")
		tempFlags.RaiseRange(start, end, FlagPurge)
		rhFlags.RaiseRange(start, end, FlagPurge)
	}
	for _, per := range a.PurgePeriods {
		start, end := clampRange(per.End, per.End+a.RecoverySamples, n, "recovery window")
		rhFlags.RaiseRange(start, end, FlagRecovery)
	}

	for _, dip := range a.Dips {
		start, end := clampRange(dip.Start+1, dip.End, n, "dip interval")
		rhFlags.RaiseRange(start, end, FlagRecovery)
		if a.FlagPurgeBeforeDip {
			ps, pe := clampRange(dip.Start-a.PreDipSamples, dip.Start, n, "pre-dip purge")
			tempFlags.RaiseRange(ps, pe, FlagPurge)
			rhFlags.RaiseRange(ps, pe, FlagPurge)
		}
	}

	applyBadIntervals(tempFlags, times, a.BadTemperature)
	applyBadIntervals(rhFlags, times, a.BadHumidity)

	return tempFlags, rhFlags
}

// applyBadIntervals forces bad_data over every sample inside each
// interval, inclusive of both endpoints, in the order given.
func applyBadIntervals(flags FlagSeq, times []time.Time, intervals []corrections.BadInterval) {
	for _, iv := range intervals {
		for i, t := range times {
			if iv.Contains(t) {
				flags.ForceBad(i)
			}
		}
	}
}

// clampRange clips [start, end) to [0, n), logging when anything had
// to be cut off.
func clampRange(start, end, n int, what string) (int, int) {
	cs, ce := maxInt(0, start), minInt(end, n)
	if cs > ce {
		cs, ce = 0, 0
	}
	if cs != start || ce != end {
		log.Printf("qc: %s [%d, %d) clipped to [%d, %d)", what, start, end, cs, ce)
	}
	return cs, ce
}
