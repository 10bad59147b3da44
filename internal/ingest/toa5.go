// Package ingest reads Campbell Scientific TOA5 logger output into
// day series samples.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/timeseries"
)

// ErrMissingColumn is returned when a required column is absent from
// the TOA5 header.
var ErrMissingColumn = errors.New("required column missing from TOA5 header")

const timestampLayout = "2006-01-02 15:04:05"

// Options names the TOA5 columns to pull and how to interpret them.
type Options struct {
	TimestampColumn   string
	TemperatureColumn string
	HumidityColumn    string

	// TemperatureInCelsius converts the logger's Celsius readings to
	// kelvin on the way in.
	TemperatureInCelsius bool
}

// DefaultOptions matches the CR1000X HMP155 table layout.
func DefaultOptions() Options {
	return Options{
		TimestampColumn:      "TIMESTAMP",
		TemperatureColumn:    "AirTC_Avg",
		HumidityColumn:       "RH",
		TemperatureInCelsius: true,
	}
}

// ReadFile reads one TOA5 file from disk.
func ReadFile(path string, opts Options) ([]timeseries.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Read parses a TOA5 stream. The format carries four header lines:
// one environment line, the column names, then units and aggregation
// rows. Data rows whose timestamp does not parse are dropped, the same
// way the processing chain has always treated logger restarts and
// partial writes.
func Read(r io.Reader, opts Options) ([]timeseries.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("reading TOA5 environment line: %w", err)
	}
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading TOA5 column names: %w", err)
	}

	tsIdx, err := columnIndex(header, opts.TimestampColumn)
	if err != nil {
		return nil, err
	}
	tempIdx, err := columnIndex(header, opts.TemperatureColumn)
	if err != nil {
		return nil, err
	}
	rhIdx, err := columnIndex(header, opts.HumidityColumn)
	if err != nil {
		return nil, err
	}

	// Units and aggregation rows.
	for i := 0; i < 2; i++ {
		if _, err := cr.Read(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("reading TOA5 header row: %w", err)
		}
	}

	var samples []timeseries.Sample
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading TOA5 data row: %w", err)
		}
		if tsIdx >= len(row) {
			continue
		}
		ts, err := time.ParseInLocation(timestampLayout, row[tsIdx], time.UTC)
		if err != nil {
			continue
		}
		temp := fieldValue(row, tempIdx)
		if opts.TemperatureInCelsius && !math.IsNaN(temp) {
			temp += 273.15
		}
		samples = append(samples, timeseries.Sample{
			Time:             ts,
			AirTemperature:   temp,
			RelativeHumidity: fieldValue(row, rhIdx),
		})
	}
	return samples, nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if h == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
}

// fieldValue parses one numeric cell. The logger writes NAN for
// missing readings; anything unparseable counts as missing too.
func fieldValue(row []string, idx int) float64 {
	if idx >= len(row) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(row[idx], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// SplitDaily buckets samples by calendar day, keyed YYYYMMDD. A sample
// stamped exactly at midnight closes the previous day's averaging
// interval and is bucketed with that day.
func SplitDaily(samples []timeseries.Sample) map[string][]timeseries.Sample {
	days := make(map[string][]timeseries.Sample)
	for _, s := range samples {
		key := DayKey(s.Time)
		days[key] = append(days[key], s)
	}
	return days
}

// DayKey returns the YYYYMMDD bucket a sample belongs to, applying the
// midnight ownership rule.
func DayKey(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		u = u.AddDate(0, 0, -1)
	}
	return u.Format("20060102")
}
