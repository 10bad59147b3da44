package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/ingest"
	"github.com/chilbolton/hmp155-qc/internal/qc"
)

type AppConfig struct {
	// Station names the site in stored artifacts.
	Station    string
	RawDataDir string
	FilePrefix string

	// ArchiveBaseURL enables HTTP fallback for raw files missing from
	// RawDataDir. Empty means local files only.
	ArchiveBaseURL string
	HTTPTimeout    time.Duration

	Ingest ingest.Options

	DBDriver string
	DBPath   string
	DBDSN    string

	// QC is the pipeline tuning after env overrides.
	QC qc.Params

	// Operator correction files, one per variable. Empty means none.
	CorrectionsTemperature string
	CorrectionsHumidity    string

	// Batch range processed at startup. Zero times disable the batch.
	ProcessFrom  time.Time
	ProcessTo    time.Time
	ProcessForce bool

	// Watch mode keeps reprocessing the trailing lookback window.
	WatchEnabled  bool
	WatchInterval time.Duration
	WatchLookback int

	APIEnabled bool
	Port       string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Station = getenvDefault("STATION", "chilbolton")
	cfg.RawDataDir = getenvDefault("RAW_DATA_DIR", "./data/raw")
	cfg.FilePrefix = getenvDefault("FILE_PREFIX", "chilbolton-hmp155")
	cfg.ArchiveBaseURL = os.Getenv("ARCHIVE_BASE_URL")

	timeout, err := getenvDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	ing := ingest.DefaultOptions()
	ing.TimestampColumn = getenvDefault("TIMESTAMP_COLUMN", ing.TimestampColumn)
	ing.TemperatureColumn = getenvDefault("TEMPERATURE_COLUMN", ing.TemperatureColumn)
	ing.HumidityColumn = getenvDefault("HUMIDITY_COLUMN", ing.HumidityColumn)
	ing.TemperatureInCelsius = getenvBool("TEMPERATURE_IN_CELSIUS", ing.TemperatureInCelsius)
	cfg.Ingest = ing

	cfg.DBDriver = getenvDefault("DB_DRIVER", "sqlite")
	cfg.DBPath = getenvDefault("DB_PATH", "hmp155-qc.sqlite")
	cfg.DBDSN = os.Getenv("DB_DSN")

	params, err := loadQCParams()
	if err != nil {
		return nil, err
	}
	cfg.QC = params

	cfg.CorrectionsTemperature = os.Getenv("CORRECTIONS_FILE_TEMPERATURE")
	cfg.CorrectionsHumidity = os.Getenv("CORRECTIONS_FILE_RH")

	cfg.ProcessFrom, err = getenvDate("PROCESS_FROM")
	if err != nil {
		return nil, err
	}
	cfg.ProcessTo, err = getenvDate("PROCESS_TO")
	if err != nil {
		return nil, err
	}
	if cfg.ProcessFrom.IsZero() != cfg.ProcessTo.IsZero() {
		return nil, fmt.Errorf("PROCESS_FROM and PROCESS_TO must be set together")
	}
	cfg.ProcessForce = getenvBool("PROCESS_FORCE", false)

	cfg.WatchEnabled = getenvBool("WATCH_ENABLED", false)
	cfg.WatchInterval, err = getenvDuration("WATCH_INTERVAL", "60m")
	if err != nil {
		return nil, err
	}
	cfg.WatchLookback = getenvInt("WATCH_LOOKBACK_DAYS", 3)

	cfg.APIEnabled = getenvBool("API_ENABLED", true)
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// loadQCParams starts from the production tuning and applies env
// overrides field by field.
func loadQCParams() (qc.Params, error) {
	p := qc.DefaultParams()

	p.WindowMinutes = getenvInt("WINDOW_MINUTES", p.WindowMinutes)
	p.TempStdThreshold = getenvFloat("STD_THRESHOLD_TEMP", p.TempStdThreshold)
	p.RHStdThreshold = getenvFloat("STD_THRESHOLD_RH", p.RHStdThreshold)
	p.RHSaturationMax = getenvFloat("RH_SATURATION_MAX", p.RHSaturationMax)
	p.CrossDaySaturationMax = getenvFloat("CROSSDAY_SATURATION_MAX", p.CrossDaySaturationMax)
	p.MinPurgeDurationMinutes = getenvInt("MIN_PURGE_MINUTES", p.MinPurgeDurationMinutes)
	p.RecoveryMinutes = getenvInt("RECOVERY_MINUTES", p.RecoveryMinutes)

	p.Dip.DropThreshold = getenvFloat("DIP_DROP_THRESHOLD", p.Dip.DropThreshold)
	p.Dip.FlatWindow = getenvInt("DIP_FLAT_WINDOW", p.Dip.FlatWindow)
	p.Dip.FlatThreshold = getenvFloat("DIP_FLAT_THRESHOLD", p.Dip.FlatThreshold)
	p.Dip.SearchHorizon = getenvInt("DIP_SEARCH_HORIZON", p.Dip.SearchHorizon)
	p.Dip.SaturationBound = getenvFloat("DIP_SATURATION_MAX", p.Dip.SaturationBound)

	recovery, err := getenvDuration("DIP_RECOVERY_TIME", p.Dip.RecoveryTime.String())
	if err != nil {
		return p, err
	}
	p.Dip.RecoveryTime = recovery

	tolerance, err := getenvDuration("DIP_TOLERANCE", p.DipTolerance.String())
	if err != nil {
		return p, err
	}
	p.DipTolerance = tolerance

	proximity, err := getenvDuration("PURGE_PROXIMITY", p.PurgeProximity.String())
	if err != nil {
		return p, err
	}
	p.PurgeProximity = proximity

	p.Blackout.Enabled = getenvBool("BLACKOUT_HOURS_ENABLED", p.Blackout.Enabled)
	p.FlagPurgeBeforeDip = getenvBool("FLAG_PURGE_BEFORE_DIP", p.FlagPurgeBeforeDip)

	if raw := os.Getenv("CUTOVER_DATE"); raw != "" {
		cutover, err := time.Parse("20060102", raw)
		if err != nil {
			return p, fmt.Errorf("invalid CUTOVER_DATE: %w", err)
		}
		p.CutoverDate = cutover
	}

	return p, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getenvDate parses a YYYYMMDD env var, returning the zero time when
// unset.
func getenvDate(key string) (time.Time, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("20060102", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
