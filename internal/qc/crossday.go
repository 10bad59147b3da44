package qc

import (
	"sort"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// ClockWindow is a purge window expressed as offsets from midnight, so
// it can be compared across calendar days. End points at the last
// sample inside the window.
type ClockWindow struct {
	Start time.Duration
	End   time.Duration
}

// DayContext carries one processed day for cross-day checks against
// the next one.
type DayContext struct {
	Series    *timeseries.DaySeries
	TempFlags []Flag
	RHFlags   []Flag
}

// ExpectedWindows re-detects purge activity on the previous day and
// returns the time-of-day windows it occupied. The sensor purges on a
// fixed schedule, so yesterday's windows predict today's. Detection
// here is stricter than the same-day selector: temperature and
// humidity must both be flat, and the saturation ceiling is the looser
// cross-day one.
func ExpectedWindows(prev *timeseries.DaySeries, p Params) []ClockWindow {
	if prev == nil || !prev.HasTimeAxis() {
		return nil
	}
	window := prev.SamplesPer(time.Duration(p.WindowMinutes) * time.Minute)
	if window < 1 {
		return nil
	}

	tempFlat := DetectFlat(prev.Temperature(), window, p.TempStdThreshold)
	rhFlat := ExcludeSaturated(
		DetectFlat(prev.Humidity(), window, p.RHStdThreshold),
		prev.Humidity(), p.CrossDaySaturationMax,
	)

	both := make(FlatMask, prev.Len())
	for i := range both {
		both[i] = tempFlat[i] && rhFlat[i]
	}

	times := prev.Times()
	var windows []ClockWindow
	for _, run := range maskRuns(both) {
		start := times[run.Start]
		end := times[run.End-1]
		windows = append(windows, ClockWindow{
			Start: start.Sub(midnightOf(start)),
			End:   end.Sub(midnightOf(start)),
		})
	}
	return windows
}

// CorroborateDips keeps the dips that look like genuine purge
// aftermath: either they begin within PurgeProximity after a same-day
// purge period ends, or their time of day falls inside one of the
// previous day's purge windows padded by DipTolerance. With no
// previous-day windows to compare against every dip passes, since on
// its own the dip shape is the only evidence available.
func CorroborateDips(dips []DipInterval, day *timeseries.DaySeries, periods []Period, expected []ClockWindow, p Params) []DipInterval {
	times := day.Times()
	var kept []DipInterval
	for _, dip := range dips {
		t := times[dip.Start]
		if afterPurgeEnd(t, periods, times, p.PurgeProximity) {
			kept = append(kept, dip)
			continue
		}
		if len(expected) == 0 {
			kept = append(kept, dip)
			continue
		}
		if insideExpected(t, expected, p.DipTolerance) {
			kept = append(kept, dip)
		}
	}
	return kept
}

func afterPurgeEnd(t time.Time, periods []Period, times []time.Time, proximity time.Duration) bool {
	for _, per := range periods {
		if per.End <= per.Start || per.End > len(times) {
			continue
		}
		since := t.Sub(times[per.End-1])
		if since >= 0 && since <= proximity {
			return true
		}
	}
	return false
}

func insideExpected(t time.Time, expected []ClockWindow, tol time.Duration) bool {
	tod := t.Sub(midnightOf(t))
	for _, w := range expected {
		if tod >= w.Start-tol && tod <= w.End+tol {
			return true
		}
	}
	return false
}

// RescueFromPrevious maps the previous day's stored purge flags onto
// the current date. Used only when same-day detection finds nothing at
// all: the schedule rarely moves between days, so yesterday's clock
// times are the best remaining estimate.
func RescueFromPrevious(day *timeseries.DaySeries, prev *DayContext) []Period {
	if prev == nil || prev.Series == nil || !prev.Series.HasTimeAxis() || len(prev.RHFlags) == 0 {
		return nil
	}
	prevTimes := prev.Series.Times()
	times := day.Times()
	date := day.Date()

	var periods []Period
	for _, run := range FlagRuns(prev.RHFlags, FlagPurge) {
		if run.End > len(prevTimes) {
			continue
		}
		start := prevTimes[run.Start]
		end := prevTimes[run.End-1]
		targetStart := date.Add(start.Sub(midnightOf(start)))
		targetEnd := date.Add(end.Sub(midnightOf(end)))

		iStart := nearestIndex(times, targetStart)
		iEnd := nearestIndex(times, targetEnd)
		if iStart < 0 || iEnd < iStart {
			continue
		}
		periods = append(periods, Period{Start: iStart, End: minInt(iEnd+1, len(times))})
	}
	return periods
}

// nearestIndex returns the index of the timestamp closest to target,
// preferring the earlier sample on ties. Returns -1 for an empty slice.
func nearestIndex(times []time.Time, target time.Time) int {
	if len(times) == 0 {
		return -1
	}
	i := sort.Search(len(times), func(k int) bool { return !times[k].Before(target) })
	if i == 0 {
		return 0
	}
	if i == len(times) {
		return len(times) - 1
	}
	before := target.Sub(times[i-1])
	after := times[i].Sub(target)
	if before <= after {
		return i - 1
	}
	return i
}

func midnightOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
