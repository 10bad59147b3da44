package config

import (
	"testing"
	"time"
)

// TestLoadDefaults checks the zero-env configuration matches the
// production tuning.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Station != "chilbolton" || cfg.FilePrefix != "chilbolton-hmp155" {
		t.Fatalf("site defaults = %q %q", cfg.Station, cfg.FilePrefix)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBPath != "hmp155-qc.sqlite" {
		t.Fatalf("db defaults = %q %q", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.QC.WindowMinutes != 8 || cfg.QC.RHStdThreshold != 0.02 {
		t.Fatalf("qc defaults = %+v", cfg.QC)
	}
	if !cfg.QC.Blackout.Enabled {
		t.Fatalf("blackout disabled by default")
	}
	if cfg.WatchEnabled || cfg.WatchInterval != 60*time.Minute || cfg.WatchLookback != 3 {
		t.Fatalf("watch defaults = %v %v %d", cfg.WatchEnabled, cfg.WatchInterval, cfg.WatchLookback)
	}
	if !cfg.APIEnabled || cfg.Port != "8080" {
		t.Fatalf("api defaults = %v %q", cfg.APIEnabled, cfg.Port)
	}
	if !cfg.ProcessFrom.IsZero() || !cfg.ProcessTo.IsZero() {
		t.Fatalf("batch range set by default: %v %v", cfg.ProcessFrom, cfg.ProcessTo)
	}
	if !cfg.Ingest.TemperatureInCelsius || cfg.Ingest.TimestampColumn != "TIMESTAMP" {
		t.Fatalf("ingest defaults = %+v", cfg.Ingest)
	}
}

// TestLoadOverrides checks env vars reach the right fields.
func TestLoadOverrides(t *testing.T) {
	t.Setenv("STATION", "cardington")
	t.Setenv("WINDOW_MINUTES", "10")
	t.Setenv("STD_THRESHOLD_RH", "0.5")
	t.Setenv("BLACKOUT_HOURS_ENABLED", "false")
	t.Setenv("CUTOVER_DATE", "20190101")
	t.Setenv("DIP_RECOVERY_TIME", "2m")
	t.Setenv("PROCESS_FROM", "20200601")
	t.Setenv("PROCESS_TO", "20200630")
	t.Setenv("WATCH_ENABLED", "true")
	t.Setenv("TEMPERATURE_IN_CELSIUS", "false")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_DSN", "postgres://qc@localhost/qc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Station != "cardington" {
		t.Fatalf("station = %q", cfg.Station)
	}
	if cfg.QC.WindowMinutes != 10 || cfg.QC.RHStdThreshold != 0.5 {
		t.Fatalf("qc overrides = %+v", cfg.QC)
	}
	if cfg.QC.Blackout.Enabled {
		t.Fatalf("blackout still enabled")
	}
	if !cfg.QC.CutoverDate.Equal(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("cutover = %v", cfg.QC.CutoverDate)
	}
	if cfg.QC.Dip.RecoveryTime != 2*time.Minute {
		t.Fatalf("dip recovery = %v", cfg.QC.Dip.RecoveryTime)
	}
	if !cfg.ProcessFrom.Equal(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)) ||
		!cfg.ProcessTo.Equal(time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("batch range = %v %v", cfg.ProcessFrom, cfg.ProcessTo)
	}
	if !cfg.WatchEnabled {
		t.Fatalf("watch not enabled")
	}
	if cfg.Ingest.TemperatureInCelsius {
		t.Fatalf("celsius conversion still on")
	}
	if cfg.DBDriver != "pgx" || cfg.DBDSN == "" {
		t.Fatalf("db overrides = %q %q", cfg.DBDriver, cfg.DBDSN)
	}
}

// TestLoadRejectsBadValues checks malformed env values fail loudly
// instead of silently falling back.
func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PROCESS_FROM", "June 1st")
	if _, err := Load(); err == nil {
		t.Fatalf("bad PROCESS_FROM accepted")
	}

	t.Setenv("PROCESS_FROM", "20200601")
	if _, err := Load(); err == nil {
		t.Fatalf("PROCESS_FROM without PROCESS_TO accepted")
	}

	t.Setenv("PROCESS_TO", "20200630")
	t.Setenv("WATCH_INTERVAL", "often")
	if _, err := Load(); err == nil {
		t.Fatalf("bad WATCH_INTERVAL accepted")
	}

	t.Setenv("WATCH_INTERVAL", "30m")
	t.Setenv("CUTOVER_DATE", "2018-03-13")
	if _, err := Load(); err == nil {
		t.Fatalf("bad CUTOVER_DATE accepted")
	}
}
