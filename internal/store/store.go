// Package store persists per-day QC artifacts: the samples, both flag
// sequences, the selected purge periods and the flag-meanings
// declarations, in SQLite by default or PostgreSQL for shared
// deployments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/qc"
	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// ErrNotFound is returned when no artifact exists for a requested day.
var ErrNotFound = errors.New("no QC artifact for day")

// Config selects and locates the backing database.
type Config struct {
	// Driver is "sqlite" (default) or "pgx".
	Driver string

	// Path is the SQLite file path. DSN is the PostgreSQL connection
	// string for the pgx driver.
	Path string
	DSN  string
}

// Store wraps the SQL connection together with the normalized driver
// name so query builders can branch per dialect.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects, applies per-driver connection settings, creates the
// schema and writes the flag-meanings declarations.
func Open(cfg Config) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	var dsn string
	switch driver {
	case "sqlite":
		dsn = cfg.Path
		if dsn == "" {
			dsn = "hmp155-qc.sqlite"
		}
	case "pgx":
		dsn = strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, errors.New("pgx driver needs a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// Serialize all access over one connection; modernc's SQLite
		// does not take concurrent writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.writeFlagMeanings(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	var statements []string
	switch s.driver {
	case "pgx":
		statements = []string{
			`CREATE TABLE IF NOT EXISTS qc_days (
				day TEXT PRIMARY KEY,
				station TEXT NOT NULL,
				run_id TEXT NOT NULL,
				sample_count BIGINT NOT NULL,
				interval_seconds DOUBLE PRECISION NOT NULL,
				rescued BOOLEAN NOT NULL,
				purge_periods TEXT NOT NULL,
				processed_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS qc_samples (
				day TEXT NOT NULL,
				idx BIGINT NOT NULL,
				sampled_at BIGINT NOT NULL,
				air_temperature DOUBLE PRECISION,
				relative_humidity DOUBLE PRECISION,
				qc_flag_air_temperature SMALLINT NOT NULL,
				qc_flag_relative_humidity SMALLINT NOT NULL,
				PRIMARY KEY (day, idx)
			)`,
			`CREATE TABLE IF NOT EXISTS qc_flag_meanings (
				variable TEXT PRIMARY KEY,
				long_name TEXT NOT NULL,
				flag_values TEXT NOT NULL,
				flag_meanings TEXT NOT NULL
			)`,
		}
	default:
		statements = []string{
			`CREATE TABLE IF NOT EXISTS qc_days (
				day TEXT PRIMARY KEY,
				station TEXT NOT NULL,
				run_id TEXT NOT NULL,
				sample_count INTEGER NOT NULL,
				interval_seconds REAL NOT NULL,
				rescued INTEGER NOT NULL,
				purge_periods TEXT NOT NULL,
				processed_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS qc_samples (
				day TEXT NOT NULL,
				idx INTEGER NOT NULL,
				sampled_at INTEGER NOT NULL,
				air_temperature REAL,
				relative_humidity REAL,
				qc_flag_air_temperature INTEGER NOT NULL,
				qc_flag_relative_humidity INTEGER NOT NULL,
				PRIMARY KEY (day, idx)
			)`,
			`CREATE TABLE IF NOT EXISTS qc_flag_meanings (
				variable TEXT PRIMARY KEY,
				long_name TEXT NOT NULL,
				flag_values TEXT NOT NULL,
				flag_meanings TEXT NOT NULL
			)`,
		}
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// writeFlagMeanings upserts the published flag declarations for both
// variables so every database copy carries its own decoding key.
func (s *Store) writeFlagMeanings(ctx context.Context) error {
	for _, meta := range []qc.FlagMetadata{qc.TemperatureFlagMetadata(), qc.HumidityFlagMetadata()} {
		values := make([]string, len(meta.Values))
		for i, v := range meta.Values {
			values[i] = fmt.Sprintf("%d", v)
		}
		var err error
		switch s.driver {
		case "pgx":
			_, err = s.db.ExecContext(ctx, `
INSERT INTO qc_flag_meanings (variable, long_name, flag_values, flag_meanings)
VALUES ($1, $2, $3, $4)
ON CONFLICT (variable) DO UPDATE SET
	long_name = EXCLUDED.long_name,
	flag_values = EXCLUDED.flag_values,
	flag_meanings = EXCLUDED.flag_meanings`,
				meta.Variable, meta.LongName, strings.Join(values, " "), meta.MeaningsAttr())
		default:
			_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO qc_flag_meanings (variable, long_name, flag_values, flag_meanings)
VALUES (?, ?, ?, ?)`,
				meta.Variable, meta.LongName, strings.Join(values, " "), meta.MeaningsAttr())
		}
		if err != nil {
			return fmt.Errorf("writing flag meanings for %s: %w", meta.Variable, err)
		}
	}
	return nil
}

// DayArtifact is one day's QC output headed for storage.
type DayArtifact struct {
	Day         string // YYYYMMDD
	Station     string
	RunID       string
	ProcessedAt time.Time
	Series      *timeseries.DaySeries
	Result      *qc.Result
}

// DayRecord is the stored summary row for one day.
type DayRecord struct {
	Day             string      `json:"day"`
	Station         string      `json:"station"`
	RunID           string      `json:"run_id"`
	SampleCount     int         `json:"sample_count"`
	IntervalSeconds float64     `json:"interval_seconds"`
	Rescued         bool        `json:"rescued"`
	PurgePeriods    []qc.Period `json:"purge_periods"`
	ProcessedAt     time.Time   `json:"processed_at"`
}

// StoredDay is a full artifact read back from the database.
type StoredDay struct {
	Record    DayRecord
	Series    *timeseries.DaySeries
	TempFlags []qc.Flag
	RHFlags   []qc.Flag
}

// SaveDay replaces any previous artifact for the day. The summary row
// is written last so a partially-written day never looks complete.
func (s *Store) SaveDay(ctx context.Context, art DayArtifact) error {
	if art.Series == nil || art.Result == nil {
		return errors.New("day artifact needs both series and result")
	}

	if err := s.deleteDay(ctx, art.Day); err != nil {
		return err
	}
	if err := s.insertSamples(ctx, art); err != nil {
		return err
	}

	periodsJSON, err := json.Marshal(art.Result.PurgePeriods)
	if err != nil {
		return fmt.Errorf("encoding purge periods: %w", err)
	}
	switch s.driver {
	case "pgx":
		_, err = s.db.ExecContext(ctx, `
INSERT INTO qc_days (day, station, run_id, sample_count, interval_seconds, rescued, purge_periods, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			art.Day, art.Station, art.RunID, art.Series.Len(), art.Result.IntervalSeconds,
			art.Result.RescuedFromPrevious, string(periodsJSON), art.ProcessedAt.UTC().Unix())
	default:
		_, err = s.db.ExecContext(ctx, `
INSERT INTO qc_days (day, station, run_id, sample_count, interval_seconds, rescued, purge_periods, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			art.Day, art.Station, art.RunID, art.Series.Len(), art.Result.IntervalSeconds,
			art.Result.RescuedFromPrevious, string(periodsJSON), art.ProcessedAt.UTC().Unix())
	}
	if err != nil {
		return fmt.Errorf("writing day row %s: %w", art.Day, err)
	}
	return nil
}

func (s *Store) deleteDay(ctx context.Context, day string) error {
	var err error
	switch s.driver {
	case "pgx":
		if _, err = s.db.ExecContext(ctx, `DELETE FROM qc_samples WHERE day = $1`, day); err == nil {
			_, err = s.db.ExecContext(ctx, `DELETE FROM qc_days WHERE day = $1`, day)
		}
	default:
		if _, err = s.db.ExecContext(ctx, `DELETE FROM qc_samples WHERE day = ?`, day); err == nil {
			_, err = s.db.ExecContext(ctx, `DELETE FROM qc_days WHERE day = ?`, day)
		}
	}
	if err != nil {
		return fmt.Errorf("clearing previous artifact for %s: %w", day, err)
	}
	return nil
}

func (s *Store) insertSamples(ctx context.Context, art DayArtifact) error {
	if s.driver == "pgx" {
		return s.insertSamplesPostgresCopy(ctx, art)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting sample insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO qc_samples (day, idx, sampled_at, air_temperature, relative_humidity, qc_flag_air_temperature, qc_flag_relative_humidity)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	samples := art.Series.Samples()
	for i, smp := range samples {
		_, err := stmt.ExecContext(ctx, art.Day, i, smp.Time.UTC().Unix(),
			nullableFloat64(smp.AirTemperature), nullableFloat64(smp.RelativeHumidity),
			int(art.Result.TempFlags[i]), int(art.Result.RHFlags[i]))
		if err != nil {
			return fmt.Errorf("inserting sample %d of %s: %w", i, art.Day, err)
		}
	}
	return tx.Commit()
}

// HasDay reports whether a completed artifact exists for the day.
func (s *Store) HasDay(ctx context.Context, day string) (bool, error) {
	query := `SELECT 1 FROM qc_days WHERE day = ?`
	if s.driver == "pgx" {
		query = `SELECT 1 FROM qc_days WHERE day = $1`
	}
	var one int
	err := s.db.QueryRowContext(ctx, query, day).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking day %s: %w", day, err)
	}
	return true, nil
}

// LoadDay reads a full artifact back, rebuilding the day series and
// both flag sequences.
func (s *Store) LoadDay(ctx context.Context, day string) (*StoredDay, error) {
	rec, err := s.dayRecord(ctx, day)
	if err != nil {
		return nil, err
	}

	query := `
SELECT sampled_at, air_temperature, relative_humidity, qc_flag_air_temperature, qc_flag_relative_humidity
FROM qc_samples WHERE day = ? ORDER BY idx`
	if s.driver == "pgx" {
		query = strings.Replace(query, "?", "$1", 1)
	}
	rows, err := s.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("loading samples for %s: %w", day, err)
	}
	defer rows.Close()

	var (
		samples   []timeseries.Sample
		tempFlags []qc.Flag
		rhFlags   []qc.Flag
	)
	for rows.Next() {
		var (
			sampledAt  int64
			temp, rh   sql.NullFloat64
			tflag, hfl int
		)
		if err := rows.Scan(&sampledAt, &temp, &rh, &tflag, &hfl); err != nil {
			return nil, fmt.Errorf("scanning sample of %s: %w", day, err)
		}
		samples = append(samples, timeseries.Sample{
			Time:             time.Unix(sampledAt, 0).UTC(),
			AirTemperature:   floatOrNaN(temp),
			RelativeHumidity: floatOrNaN(rh),
		})
		tempFlags = append(tempFlags, qc.Flag(tflag))
		rhFlags = append(rhFlags, qc.Flag(hfl))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading samples for %s: %w", day, err)
	}

	return &StoredDay{
		Record:    rec,
		Series:    timeseries.NewDaySeries(samples),
		TempFlags: tempFlags,
		RHFlags:   rhFlags,
	}, nil
}

func (s *Store) dayRecord(ctx context.Context, day string) (DayRecord, error) {
	query := `
SELECT day, station, run_id, sample_count, interval_seconds, rescued, purge_periods, processed_at
FROM qc_days WHERE day = ?`
	if s.driver == "pgx" {
		query = strings.Replace(query, "?", "$1", 1)
	}

	var (
		rec         DayRecord
		periodsJSON string
		processedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, day).Scan(
		&rec.Day, &rec.Station, &rec.RunID, &rec.SampleCount,
		&rec.IntervalSeconds, &rec.Rescued, &periodsJSON, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DayRecord{}, fmt.Errorf("%w: %s", ErrNotFound, day)
	}
	if err != nil {
		return DayRecord{}, fmt.Errorf("loading day %s: %w", day, err)
	}
	if err := json.Unmarshal([]byte(periodsJSON), &rec.PurgePeriods); err != nil {
		return DayRecord{}, fmt.Errorf("decoding purge periods for %s: %w", day, err)
	}
	rec.ProcessedAt = time.Unix(processedAt, 0).UTC()
	return rec, nil
}

// ListDays returns the summary rows for every stored day in date
// order.
func (s *Store) ListDays(ctx context.Context) ([]DayRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT day, station, run_id, sample_count, interval_seconds, rescued, purge_periods, processed_at
FROM qc_days ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("listing days: %w", err)
	}
	defer rows.Close()

	var recs []DayRecord
	for rows.Next() {
		var (
			rec         DayRecord
			periodsJSON string
			processedAt int64
		)
		if err := rows.Scan(&rec.Day, &rec.Station, &rec.RunID, &rec.SampleCount,
			&rec.IntervalSeconds, &rec.Rescued, &periodsJSON, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning day row: %w", err)
		}
		if err := json.Unmarshal([]byte(periodsJSON), &rec.PurgePeriods); err != nil {
			return nil, fmt.Errorf("decoding purge periods for %s: %w", rec.Day, err)
		}
		rec.ProcessedAt = time.Unix(processedAt, 0).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// FlagMeanings reads back the stored flag declarations keyed by
// variable name.
func (s *Store) FlagMeanings(ctx context.Context) (map[string]StoredMeanings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT variable, long_name, flag_values, flag_meanings FROM qc_flag_meanings`)
	if err != nil {
		return nil, fmt.Errorf("loading flag meanings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StoredMeanings)
	for rows.Next() {
		var m StoredMeanings
		if err := rows.Scan(&m.Variable, &m.LongName, &m.Values, &m.Meanings); err != nil {
			return nil, fmt.Errorf("scanning flag meanings: %w", err)
		}
		out[m.Variable] = m
	}
	return out, rows.Err()
}

// StoredMeanings mirrors one row of the flag-meanings table.
type StoredMeanings struct {
	Variable string `json:"variable"`
	LongName string `json:"long_name"`
	Values   string `json:"flag_values"`
	Meanings string `json:"flag_meanings"`
}

// nullableFloat64 maps NaN readings to SQL NULL.
func nullableFloat64(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
