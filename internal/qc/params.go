package qc

import "time"

// Params collects every tunable of the purge-flagging pipeline. Zero
// values are not usable; start from DefaultParams.
type Params struct {
	// WindowMinutes is the centered rolling-std window used for flat
	// detection, expressed in minutes of wall-clock time.
	WindowMinutes int

	// TempStdThreshold and RHStdThreshold are the "flat" ceilings for
	// the rolling standard deviation of each variable.
	TempStdThreshold float64
	RHStdThreshold   float64

	// RHSaturationMax removes saturated samples from the same-day flat
	// mask. CrossDaySaturationMax plays the same role when re-detecting
	// purges on the previous day.
	RHSaturationMax       float64
	CrossDaySaturationMax float64

	// MinPurgeDurationMinutes sets the pre/post expansion applied to
	// detected flat runs (half before, half after). RecoveryMinutes is
	// the RH recovery tail flagged after each purge period.
	MinPurgeDurationMinutes int
	RecoveryMinutes         int

	Dip DipParams

	// Blackout drops candidate periods that start in hours when the
	// sensor never purges. CutoverDate switches the firmware schedule
	// from two purges per day to one.
	Blackout    BlackoutPolicy
	CutoverDate time.Time

	// DipTolerance pads the previous day's purge windows when deciding
	// whether a dip happened at a believable time of day.
	// PurgeProximity accepts dips that begin shortly after a same-day
	// purge period ends.
	DipTolerance   time.Duration
	PurgeProximity time.Duration

	// FlagPurgeBeforeDip additionally marks the stretch before each
	// accepted dip as purge. Off by default: the purge detector already
	// covers it on well-behaved days.
	FlagPurgeBeforeDip bool
}

// DipParams tunes the RH dip detector.
type DipParams struct {
	// DropThreshold is the minimum RH fall, in percent, between the
	// pre-dip level and the dip start.
	DropThreshold float64

	// RecoveryTime bounds how long RH may take to climb back by the
	// same amount it fell.
	RecoveryTime time.Duration

	// FlatWindow and FlatThreshold define the looser flat mask a dip
	// must be preceded by.
	FlatWindow    int
	FlatThreshold float64

	// SearchHorizon is how many samples past the dip start to scan for
	// the recovery.
	SearchHorizon int

	// SaturationBound rejects dips that start right after saturated
	// conditions, where falling RH is drying air rather than a purge.
	SaturationBound float64
}

// BlackoutPolicy describes the hours of day when the instrument never
// runs a heater purge, so flat periods starting then are noise.
type BlackoutPolicy struct {
	Enabled bool

	// Night band wraps midnight: hour >= NightStartHour or
	// hour <= NightEndHour is excluded.
	NightStartHour int
	NightEndHour   int

	// Evening band [EveningStartHour, EveningEndHour) is excluded.
	EveningStartHour int
	EveningEndHour   int

	// Hours before EarliestHour are excluded.
	EarliestHour int
}

// Excludes reports whether a candidate purge starting at the given hour
// of day falls in a blackout band.
func (p BlackoutPolicy) Excludes(hour int) bool {
	if !p.Enabled {
		return false
	}
	if hour >= p.NightStartHour || hour <= p.NightEndHour {
		return true
	}
	if hour >= p.EveningStartHour && hour < p.EveningEndHour {
		return true
	}
	return hour < p.EarliestHour
}

// DefaultParams returns the production tuning for the Chilbolton HMP155.
func DefaultParams() Params {
	return Params{
		WindowMinutes:           8,
		TempStdThreshold:        0.03,
		RHStdThreshold:          0.02,
		RHSaturationMax:         99.5,
		CrossDaySaturationMax:   99.9,
		MinPurgeDurationMinutes: 8,
		RecoveryMinutes:         6,
		Dip: DipParams{
			DropThreshold:   3.0,
			RecoveryTime:    360 * time.Second,
			FlatWindow:      5,
			FlatThreshold:   0.1,
			SearchHorizon:   20,
			SaturationBound: 97.0,
		},
		Blackout: BlackoutPolicy{
			Enabled:          true,
			NightStartHour:   23,
			NightEndHour:     2,
			EveningStartHour: 17,
			EveningEndHour:   20,
			EarliestHour:     6,
		},
		CutoverDate:    time.Date(2018, time.March, 13, 0, 0, 0, 0, time.UTC),
		DipTolerance:   15 * time.Minute,
		PurgeProximity: 20 * time.Minute,
	}
}
