package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// insertSamplesPostgresCopy streams one day of samples into PostgreSQL
// with COPY. SaveDay clears the day's rows beforehand, so the stream
// lands directly in qc_samples with no conflict handling needed.
func (s *Store) insertSamplesPostgresCopy(ctx context.Context, art DayArtifact) error {
	samples := art.Series.Samples()
	if len(samples) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	rows := make([][]interface{}, 0, len(samples))
	for i, smp := range samples {
		rows = append(rows, []interface{}{
			art.Day, i, smp.Time.UTC().Unix(),
			nullableFloat64(smp.AirTemperature),
			nullableFloat64(smp.RelativeHumidity),
			int(art.Result.TempFlags[i]), int(art.Result.RHFlags[i]),
		})
	}

	copyErr := conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(
			ctx,
			pgx.Identifier{"qc_samples"},
			[]string{"day", "idx", "sampled_at", "air_temperature", "relative_humidity", "qc_flag_air_temperature", "qc_flag_relative_humidity"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if copyErr != nil {
		return fmt.Errorf("copy samples for %s: %w", art.Day, copyErr)
	}
	return nil
}
