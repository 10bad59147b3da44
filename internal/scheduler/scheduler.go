// Package scheduler periodically reprocesses the trailing window of
// days so late-arriving raw files are picked up without manual runs.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/chilbolton/hmp155-qc/internal/driver"
)

// Scheduler drives the QC runner over a sliding window of recent days.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    *driver.Runner
	interval  time.Duration
	lookback  int
}

// New creates a Scheduler that processes the lookback days ending
// yesterday. Today's file is still being written, so it is left alone.
func New(runner *driver.Runner, interval time.Duration, lookbackDays int) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		lookback:  lookbackDays,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}
	lookback := s.lookback
	if lookback <= 0 {
		lookback = 3
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		to := time.Now().UTC().AddDate(0, 0, -1)
		from := to.AddDate(0, 0, -(lookback - 1))
		log.Printf("scheduler: processing window [%s, %s]",
			from.Format("20060102"), to.Format("20060102"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := s.runner.ProcessRange(ctx, from, to, false); err != nil {
			log.Printf("scheduler: window run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
