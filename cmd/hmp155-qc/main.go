package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/chilbolton/hmp155-qc/internal/api/http"
	"github.com/chilbolton/hmp155-qc/internal/archive"
	"github.com/chilbolton/hmp155-qc/internal/config"
	"github.com/chilbolton/hmp155-qc/internal/corrections"
	"github.com/chilbolton/hmp155-qc/internal/driver"
	"github.com/chilbolton/hmp155-qc/internal/qc"
	"github.com/chilbolton/hmp155-qc/internal/scheduler"
	"github.com/chilbolton/hmp155-qc/internal/store"
	"github.com/chilbolton/hmp155-qc/internal/store/drivers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	drivers.Ready()
	st, err := store.Open(store.Config{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DBDSN,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	// Operator corrections are optional; an absent file is logged and
	// skipped so processing is never blocked on it.
	badTemp := loadCorrections(cfg.CorrectionsTemperature, "temperature")
	badRH := loadCorrections(cfg.CorrectionsHumidity, "relative humidity")

	// Archive fallback with resilience (backoff + circuit breaker).
	var client *archive.Client
	if cfg.ArchiveBaseURL != "" {
		httpClient := &http.Client{
			Timeout: cfg.HTTPTimeout,
		}
		client = archive.NewClient(cfg.ArchiveBaseURL, cfg.FilePrefix, httpClient)
	}

	runner := driver.NewRunner(qc.NewEngine(cfg.QC), st, client, driver.Options{
		Station:        cfg.Station,
		RawDir:         cfg.RawDataDir,
		FilePrefix:     cfg.FilePrefix,
		Ingest:         cfg.Ingest,
		BadTemperature: badTemp,
		BadHumidity:    badRH,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot batch over the configured range, before any serving.
	if !cfg.ProcessFrom.IsZero() {
		if _, err := runner.ProcessRange(ctx, cfg.ProcessFrom, cfg.ProcessTo, cfg.ProcessForce); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Fatalf("batch run failed: %v", err)
		}
	}

	// Watch mode keeps the trailing window of days up to date.
	if cfg.WatchEnabled {
		sched := scheduler.New(runner, cfg.WatchInterval, cfg.WatchLookback)
		if err := sched.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	if !cfg.APIEnabled {
		if !cfg.WatchEnabled {
			return
		}
		<-ctx.Done()
		return
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "hmp155-qc",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "hmp155-qc",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, st, runner)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// loadCorrections reads one operator corrections file. Missing or
// unreadable files only cost the corrections, never the run.
func loadCorrections(path, variable string) []corrections.BadInterval {
	if path == "" {
		return nil
	}
	intervals, err := corrections.ParseFile(path)
	if err != nil {
		log.Printf("WARN: corrections for %s unavailable: %v", variable, err)
		return nil
	}
	log.Printf("INFO: loaded %d %s correction interval(s) from %s", len(intervals), variable, path)
	return intervals
}
