package httpapi

import (
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/chilbolton/hmp155-qc/internal/driver"
	"github.com/chilbolton/hmp155-qc/internal/qc"
	"github.com/chilbolton/hmp155-qc/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, st *store.Store, runner *driver.Runner) {
	v1 := app.Group("/api/v1")

	v1.Get("/qc/days", func(c *fiber.Ctx) error {
		recs, err := st.ListDays(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list processed days")
		}
		return c.JSON(fiber.Map{
			"count": len(recs),
			"days":  recs,
		})
	})

	v1.Get("/qc/days/:date", func(c *fiber.Ctx) error {
		date, err := parseDateParam(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sd, err := st.LoadDay(c.Context(), date.Format("20060102"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "day has not been processed")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load day")
		}
		return c.JSON(sd.Record)
	})

	v1.Get("/qc/days/:date/flags", func(c *fiber.Ctx) error {
		date, err := parseDateParam(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sd, err := st.LoadDay(c.Context(), date.Format("20060102"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "day has not been processed")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load day")
		}

		samples := sd.Series.Samples()
		out := make([]flagSample, len(samples))
		for i, smp := range samples {
			out[i] = flagSample{
				Time:             smp.Time,
				AirTemperature:   jsonFloat(smp.AirTemperature),
				RelativeHumidity: jsonFloat(smp.RelativeHumidity),
				TempFlag:         sd.TempFlags[i],
				RHFlag:           sd.RHFlags[i],
			}
		}
		return c.JSON(fiber.Map{
			"day":     sd.Record.Day,
			"samples": out,
		})
	})

	v1.Post("/qc/days/:date/reprocess", func(c *fiber.Ctx) error {
		date, err := parseDateParam(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		outcome := runner.ProcessDay(c.Context(), date, true)
		switch outcome.Status {
		case driver.StatusMissing:
			return fiber.NewError(fiber.StatusNotFound, "no raw data for day")
		case driver.StatusFailed:
			return fiber.NewError(fiber.StatusInternalServerError, outcome.Error)
		}
		return c.JSON(outcome)
	})

	v1.Get("/qc/flag-meanings", func(c *fiber.Ctx) error {
		meanings, err := st.FlagMeanings(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load flag meanings")
		}
		return c.JSON(fiber.Map{"meanings": meanings})
	})
}

// flagSample is one sample of the published flag product. Readings are
// pointers so NaN gaps serialize as null.
type flagSample struct {
	Time             time.Time `json:"time"`
	AirTemperature   *float64  `json:"air_temperature"`
	RelativeHumidity *float64  `json:"relative_humidity"`
	TempFlag         qc.Flag   `json:"qc_flag_air_temperature"`
	RHFlag           qc.Flag   `json:"qc_flag_relative_humidity"`
}

func jsonFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// dateParam validates the :date path segment.
type dateParam struct {
	Date string `validate:"required,len=8,numeric"`
}

func parseDateParam(c *fiber.Ctx) (time.Time, error) {
	p := dateParam{Date: c.Params("date")}
	if err := validate.Struct(p); err != nil {
		return time.Time{}, err
	}

	date, err := time.Parse("20060102", p.Date)
	if err != nil {
		return time.Time{}, errors.New("date must be a valid YYYYMMDD day")
	}
	return date, nil
}
