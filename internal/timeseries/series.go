// Package timeseries holds the in-memory representation of one day of
// HMP155 temperature and relative humidity samples.
package timeseries

import (
	"sort"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/common"
)

// Sample is one logger reading. Temperature is in kelvin, humidity in
// percent. Missing readings are NaN.
type Sample struct {
	Time             time.Time
	AirTemperature   float64
	RelativeHumidity float64
}

// DaySeries is an immutable, time-sorted day of samples with the
// per-variable columns broken out for the detectors.
type DaySeries struct {
	samples []Sample
	times   []time.Time
	temps   []float64
	hums    []float64

	medianInterval float64
}

// NewDaySeries copies and time-sorts samples into a DaySeries.
func NewDaySeries(samples []Sample) *DaySeries {
	s := make([]Sample, len(samples))
	copy(s, samples)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })

	d := &DaySeries{
		samples: s,
		times:   make([]time.Time, len(s)),
		temps:   make([]float64, len(s)),
		hums:    make([]float64, len(s)),
	}
	for i, smp := range s {
		d.times[i] = smp.Time
		d.temps[i] = smp.AirTemperature
		d.hums[i] = smp.RelativeHumidity
	}
	d.medianInterval = medianIntervalSeconds(d.times)
	return d
}

func (d *DaySeries) Len() int { return len(d.samples) }

// Samples returns the sorted backing samples. Callers must not mutate it.
func (d *DaySeries) Samples() []Sample { return d.samples }

// Times returns the sample timestamps in ascending order.
func (d *DaySeries) Times() []time.Time { return d.times }

// Temperature returns the air temperature column in kelvin.
func (d *DaySeries) Temperature() []float64 { return d.temps }

// Humidity returns the relative humidity column in percent.
func (d *DaySeries) Humidity() []float64 { return d.hums }

// Date returns UTC midnight of the day the series belongs to, taken
// from the first sample.
func (d *DaySeries) Date() time.Time {
	if len(d.times) == 0 {
		return time.Time{}
	}
	t := d.times[0].UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// HasTimeAxis reports whether the series carries usable timestamps.
func (d *DaySeries) HasTimeAxis() bool {
	return len(d.times) > 0 && !d.times[0].IsZero()
}

// MedianIntervalSeconds returns the median spacing between consecutive
// samples in seconds, or 0 when fewer than two samples exist.
func (d *DaySeries) MedianIntervalSeconds() float64 { return d.medianInterval }

// SamplesPer converts a duration into a sample count at the series'
// median interval, truncating toward zero. It returns 0 when the
// interval is unknown.
func (d *DaySeries) SamplesPer(dur time.Duration) int {
	if d.medianInterval <= 0 {
		return 0
	}
	return int(dur.Seconds() / d.medianInterval)
}

func medianIntervalSeconds(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	diffs := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		diffs = append(diffs, times[i].Sub(times[i-1]).Seconds())
	}
	return common.Median(diffs)
}
