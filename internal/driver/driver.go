// Package driver runs the per-day QC pipeline over date ranges,
// sourcing raw files locally or from the archive and threading each
// day's outcome into the next as cross-midnight context.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chilbolton/hmp155-qc/internal/archive"
	"github.com/chilbolton/hmp155-qc/internal/corrections"
	"github.com/chilbolton/hmp155-qc/internal/ingest"
	"github.com/chilbolton/hmp155-qc/internal/qc"
	"github.com/chilbolton/hmp155-qc/internal/store"
	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// ErrNoRawData reports that neither the local raw directory nor the
// archive has a file for the requested day.
var ErrNoRawData = errors.New("no raw data for day")

// DayStatus classifies the outcome of one day's run.
type DayStatus string

const (
	StatusProcessed DayStatus = "processed"
	StatusSkipped   DayStatus = "skipped"
	StatusMissing   DayStatus = "missing"
	StatusFailed    DayStatus = "failed"
)

// DayOutcome summarizes one day's run.
type DayOutcome struct {
	Day     string    `json:"day"`
	Status  DayStatus `json:"status"`
	Periods int       `json:"purge_periods,omitempty"`
	Dips    int       `json:"dips,omitempty"`
	Rescued bool      `json:"rescued,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// RunReport aggregates the outcomes of one processing run.
type RunReport struct {
	RunID     string       `json:"run_id"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Missing   int          `json:"missing"`
	Failed    int          `json:"failed"`
	Outcomes  []DayOutcome `json:"outcomes"`
}

func (r *RunReport) add(o DayOutcome) {
	switch o.Status {
	case StatusProcessed:
		r.Processed++
	case StatusSkipped:
		r.Skipped++
	case StatusMissing:
		r.Missing++
	case StatusFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Options carries the site wiring a Runner needs beyond its
// collaborators.
type Options struct {
	Station    string
	RawDir     string
	FilePrefix string
	Ingest     ingest.Options

	// Operator-declared bad intervals, applied on every run.
	BadTemperature []corrections.BadInterval
	BadHumidity    []corrections.BadInterval
}

// Runner executes the QC pipeline for single days and date ranges.
type Runner struct {
	engine  *qc.Engine
	store   *store.Store
	archive *archive.Client // nil means local raw files only
	opts    Options
}

func NewRunner(engine *qc.Engine, st *store.Store, client *archive.Client, opts Options) *Runner {
	return &Runner{engine: engine, store: st, archive: client, opts: opts}
}

// ProcessDay runs one day. With force set an existing artifact is
// reprocessed and replaced. Context for the cross-midnight checks is
// recovered from the previous day's stored artifact when present.
func (r *Runner) ProcessDay(ctx context.Context, date time.Time, force bool) DayOutcome {
	date = midnight(date)
	prev, err := r.contextFromStore(ctx, date.AddDate(0, 0, -1).Format("20060102"))
	if err != nil {
		log.Printf("driver: %s: loading previous day context: %v", date.Format("20060102"), err)
	}
	outcome, _ := r.processOne(ctx, uuid.NewString(), date, force, prev)
	return outcome
}

// ProcessRange runs every day in [from, to] in order. A day that fails
// is logged and skipped; the run carries on so one corrupt file cannot
// sink a backfill.
func (r *Runner) ProcessRange(ctx context.Context, from, to time.Time, force bool) (*RunReport, error) {
	from, to = midnight(from), midnight(to)
	if to.Before(from) {
		return nil, fmt.Errorf("range end %s is before start %s",
			to.Format("20060102"), from.Format("20060102"))
	}

	report := &RunReport{
		RunID: uuid.NewString(),
		From:  from.Format("20060102"),
		To:    to.Format("20060102"),
	}

	prev, err := r.contextFromStore(ctx, from.AddDate(0, 0, -1).Format("20060102"))
	if err != nil {
		log.Printf("driver: run %s: loading context before %s: %v", report.RunID, report.From, err)
		prev = nil
	}

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		outcome, next := r.processOne(ctx, report.RunID, date, force, prev)
		report.add(outcome)
		prev = next
	}

	log.Printf("driver: run %s [%s, %s]: %d processed, %d skipped, %d missing, %d failed",
		report.RunID, report.From, report.To,
		report.Processed, report.Skipped, report.Missing, report.Failed)
	return report, nil
}

// processOne runs a single day and returns both its outcome and the
// context the following day should see. Skipped days recover context
// from the store; missing and failed days leave the next day without
// history.
func (r *Runner) processOne(ctx context.Context, runID string, date time.Time, force bool, prev *qc.DayContext) (DayOutcome, *qc.DayContext) {
	day := date.Format("20060102")

	if !force {
		ok, err := r.store.HasDay(ctx, day)
		if err != nil {
			log.Printf("driver: %s: checking store: %v", day, err)
			return DayOutcome{Day: day, Status: StatusFailed, Error: err.Error()}, nil
		}
		if ok {
			next, err := r.contextFromStore(ctx, day)
			if err != nil {
				log.Printf("driver: %s: loading stored context: %v", day, err)
				next = nil
			}
			return DayOutcome{Day: day, Status: StatusSkipped}, next
		}
	}

	samples, err := r.loadRaw(ctx, date)
	if err != nil {
		if errors.Is(err, ErrNoRawData) {
			log.Printf("driver: %s: no raw data", day)
			return DayOutcome{Day: day, Status: StatusMissing}, nil
		}
		log.Printf("driver: %s: %v", day, err)
		return DayOutcome{Day: day, Status: StatusFailed, Error: err.Error()}, nil
	}

	// The raw file can carry the next day's midnight sample and the
	// odd stray row, so bucket by day and keep only our own.
	own := ingest.SplitDaily(samples)[day]
	if len(own) == 0 {
		log.Printf("driver: %s: raw file holds no samples for the day", day)
		return DayOutcome{Day: day, Status: StatusMissing}, nil
	}

	series := timeseries.NewDaySeries(own)
	result, err := r.engine.Run(series, prev, qc.RunOptions{
		BadTemperature: r.opts.BadTemperature,
		BadHumidity:    r.opts.BadHumidity,
	})
	if err != nil {
		log.Printf("driver: %s: %v", day, err)
		return DayOutcome{Day: day, Status: StatusFailed, Error: err.Error()}, nil
	}

	art := store.DayArtifact{
		Day:         day,
		Station:     r.opts.Station,
		RunID:       runID,
		ProcessedAt: time.Now().UTC(),
		Series:      series,
		Result:      result,
	}
	if err := r.store.SaveDay(ctx, art); err != nil {
		log.Printf("driver: %s: saving artifact: %v", day, err)
		return DayOutcome{Day: day, Status: StatusFailed, Error: err.Error()}, nil
	}

	next := &qc.DayContext{Series: series, TempFlags: result.TempFlags, RHFlags: result.RHFlags}
	return DayOutcome{
		Day:     day,
		Status:  StatusProcessed,
		Periods: len(result.PurgePeriods),
		Dips:    len(result.Dips),
		Rescued: result.RescuedFromPrevious,
	}, next
}

// loadRaw reads the day's raw TOA5 samples, preferring the local raw
// directory and falling back to the archive. Fetched files are
// mirrored into the raw directory so later runs stay local.
func (r *Runner) loadRaw(ctx context.Context, date time.Time) ([]timeseries.Sample, error) {
	rel := archive.RelativeDayPath(r.opts.FilePrefix, date)
	local := filepath.Join(r.opts.RawDir, filepath.FromSlash(rel))

	data, err := os.ReadFile(local)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		if r.archive == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoRawData, rel)
		}
		data, err = r.archive.FetchDay(ctx, date)
		if errors.Is(err, archive.ErrDayMissing) {
			return nil, fmt.Errorf("%w: %s", ErrNoRawData, rel)
		}
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", rel, err)
		}
		r.mirror(local, data)
	default:
		return nil, fmt.Errorf("reading %s: %w", local, err)
	}

	samples, err := ingest.Read(bytes.NewReader(data), r.opts.Ingest)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rel, err)
	}
	return samples, nil
}

// mirror writes a fetched raw file next to the local ones. Failure is
// logged only; the data is already in hand.
func (r *Runner) mirror(local string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		log.Printf("driver: mirroring %s: %v", local, err)
		return
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		log.Printf("driver: mirroring %s: %v", local, err)
	}
}

// contextFromStore rebuilds cross-midnight context from a stored
// artifact. A day that was never stored yields no context and no
// error.
func (r *Runner) contextFromStore(ctx context.Context, day string) (*qc.DayContext, error) {
	sd, err := r.store.LoadDay(ctx, day)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &qc.DayContext{Series: sd.Series, TempFlags: sd.TempFlags, RHFlags: sd.RHFlags}, nil
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
