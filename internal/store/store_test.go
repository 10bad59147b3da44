package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/qc"
	"github.com/chilbolton/hmp155-qc/internal/store/drivers"
	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// newTestStore opens a throwaway in-memory SQLite store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	drivers.Ready()
	s, err := Open(Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testArtifact builds a small complete artifact: eight samples one
// minute apart, one NaN humidity reading, a purge over [2, 5) and a
// recovery flag at 5.
func testArtifact(day, runID string) DayArtifact {
	start, _ := time.Parse("20060102", day)
	samples := make([]timeseries.Sample, 8)
	for i := range samples {
		samples[i] = timeseries.Sample{
			Time:             start.Add(time.Duration(i) * time.Minute),
			AirTemperature:   285.0 + float64(i),
			RelativeHumidity: 50.0 + float64(i),
		}
	}
	samples[3].RelativeHumidity = math.NaN()

	tempFlags := qc.NewFlagSeq(8, nil)
	rhFlags := qc.NewFlagSeq(8, nil)
	tempFlags.RaiseRange(2, 5, qc.FlagPurge)
	rhFlags.RaiseRange(2, 5, qc.FlagPurge)
	rhFlags.Raise(5, qc.FlagRecovery)

	return DayArtifact{
		Day:         day,
		Station:     "chilbolton",
		RunID:       runID,
		ProcessedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Series:      timeseries.NewDaySeries(samples),
		Result: &qc.Result{
			TempFlags:       tempFlags,
			RHFlags:         rhFlags,
			PurgePeriods:    []qc.Period{{Start: 2, End: 5}},
			IntervalSeconds: 60,
			WindowSamples:   8,
		},
	}
}

// TestStoreRoundTrip saves one day and reads it back, checking the
// summary row, the rebuilt series, NaN survival and both flag
// sequences.
func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	art := testArtifact("20200615", "run-1")

	if err := s.SaveDay(ctx, art); err != nil {
		t.Fatalf("SaveDay: %v", err)
	}

	ok, err := s.HasDay(ctx, "20200615")
	if err != nil {
		t.Fatalf("HasDay: %v", err)
	}
	if !ok {
		t.Fatalf("HasDay = false after SaveDay")
	}

	got, err := s.LoadDay(ctx, "20200615")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	rec := got.Record
	if rec.Day != "20200615" || rec.Station != "chilbolton" || rec.RunID != "run-1" {
		t.Fatalf("record identity = %q %q %q", rec.Day, rec.Station, rec.RunID)
	}
	if rec.SampleCount != 8 || rec.IntervalSeconds != 60 || rec.Rescued {
		t.Fatalf("record summary = %+v", rec)
	}
	if len(rec.PurgePeriods) != 1 || rec.PurgePeriods[0] != (qc.Period{Start: 2, End: 5}) {
		t.Fatalf("purge periods = %v", rec.PurgePeriods)
	}
	if !rec.ProcessedAt.Equal(art.ProcessedAt) {
		t.Fatalf("processed at = %v, want %v", rec.ProcessedAt, art.ProcessedAt)
	}

	if got.Series.Len() != 8 {
		t.Fatalf("series length = %d", got.Series.Len())
	}
	times := got.Series.Times()
	if !times[0].Equal(time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first sample time = %v", times[0])
	}
	hums := got.Series.Humidity()
	if !math.IsNaN(hums[3]) {
		t.Fatalf("humidity[3] = %v, want NaN", hums[3])
	}
	if hums[4] != 54.0 {
		t.Fatalf("humidity[4] = %v", hums[4])
	}
	temps := got.Series.Temperature()
	if temps[0] != 285.0 {
		t.Fatalf("temperature[0] = %v", temps[0])
	}

	for i := 0; i < 8; i++ {
		if got.TempFlags[i] != art.Result.TempFlags[i] {
			t.Fatalf("temp flag %d = %d, want %d", i, got.TempFlags[i], art.Result.TempFlags[i])
		}
		if got.RHFlags[i] != art.Result.RHFlags[i] {
			t.Fatalf("rh flag %d = %d, want %d", i, got.RHFlags[i], art.Result.RHFlags[i])
		}
	}
}

// TestStoreLoadMissingDay checks the sentinel error surfaces for
// unknown days.
func TestStoreLoadMissingDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadDay(ctx, "19990101"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadDay error = %v, want ErrNotFound", err)
	}
	ok, err := s.HasDay(ctx, "19990101")
	if err != nil {
		t.Fatalf("HasDay: %v", err)
	}
	if ok {
		t.Fatalf("HasDay = true for unknown day")
	}
}

// TestStoreSaveDayReplaces reprocesses a day and confirms the second
// artifact fully displaces the first.
func TestStoreSaveDayReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveDay(ctx, testArtifact("20200615", "run-1")); err != nil {
		t.Fatalf("first SaveDay: %v", err)
	}
	second := testArtifact("20200615", "run-2")
	second.Result.RescuedFromPrevious = true
	second.Result.PurgePeriods = []qc.Period{{Start: 1, End: 4}}
	if err := s.SaveDay(ctx, second); err != nil {
		t.Fatalf("second SaveDay: %v", err)
	}

	got, err := s.LoadDay(ctx, "20200615")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if got.Record.RunID != "run-2" || !got.Record.Rescued {
		t.Fatalf("record after replace = %+v", got.Record)
	}
	if len(got.Record.PurgePeriods) != 1 || got.Record.PurgePeriods[0].Start != 1 {
		t.Fatalf("purge periods after replace = %v", got.Record.PurgePeriods)
	}
	if got.Series.Len() != 8 {
		t.Fatalf("series length after replace = %d", got.Series.Len())
	}

	recs, err := s.ListDays(ctx)
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("ListDays returned %d rows, want 1", len(recs))
	}
}

// TestStoreListDaysOrdered stores days out of order and expects date
// order back.
func TestStoreListDaysOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, day := range []string{"20200617", "20200615", "20200616"} {
		if err := s.SaveDay(ctx, testArtifact(day, "run-"+day)); err != nil {
			t.Fatalf("SaveDay %s: %v", day, err)
		}
	}

	recs, err := s.ListDays(ctx)
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("ListDays returned %d rows", len(recs))
	}
	for i, want := range []string{"20200615", "20200616", "20200617"} {
		if recs[i].Day != want {
			t.Fatalf("ListDays[%d] = %s, want %s", i, recs[i].Day, want)
		}
	}
}

// TestStoreFlagMeanings checks Open writes the decoding key for both
// variables.
func TestStoreFlagMeanings(t *testing.T) {
	s := newTestStore(t)

	meanings, err := s.FlagMeanings(context.Background())
	if err != nil {
		t.Fatalf("FlagMeanings: %v", err)
	}
	temp, ok := meanings["qc_flag_air_temperature"]
	if !ok {
		t.Fatalf("no meanings row for qc_flag_air_temperature: %v", meanings)
	}
	if temp.Values != "0 1 2 3" {
		t.Fatalf("temperature flag values = %q", temp.Values)
	}
	rh, ok := meanings["qc_flag_relative_humidity"]
	if !ok {
		t.Fatalf("no meanings row for qc_flag_relative_humidity: %v", meanings)
	}
	if rh.Values != "0 1 2 3 4" {
		t.Fatalf("humidity flag values = %q", rh.Values)
	}
	if rh.Meanings != qc.HumidityFlagMetadata().MeaningsAttr() {
		t.Fatalf("humidity meanings = %q", rh.Meanings)
	}
}

// TestStoreRejectsIncompleteArtifact guards against saving without a
// series or result.
func TestStoreRejectsIncompleteArtifact(t *testing.T) {
	s := newTestStore(t)

	art := testArtifact("20200615", "run-1")
	art.Result = nil
	if err := s.SaveDay(context.Background(), art); err == nil {
		t.Fatalf("SaveDay accepted artifact without result")
	}
}
