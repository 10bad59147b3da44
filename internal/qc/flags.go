package qc

import "strings"

// Flag is a per-sample quality flag code as stored in the output
// product.
type Flag int8

const (
	FlagNotUsed  Flag = 0
	FlagGood     Flag = 1
	FlagBad      Flag = 2
	FlagPurge    Flag = 3
	FlagRecovery Flag = 4
)

// flagRank orders flags by precedence for Raise. Bad data wins over
// purge, purge over recovery, recovery over good. The stored codes
// themselves do not sort this way, so the mapping is explicit.
func flagRank(f Flag) int {
	switch f {
	case FlagBad:
		return 4
	case FlagPurge:
		return 3
	case FlagRecovery:
		return 2
	case FlagGood:
		return 1
	default:
		return 0
	}
}

// FlagSeq is a mutable per-sample flag sequence for one variable.
type FlagSeq []Flag

// NewFlagSeq returns a sequence of n good_data flags, with any samples
// marked in preexistingBad seeded as bad_data. preexistingBad may be
// nil or shorter than n.
func NewFlagSeq(n int, preexistingBad []bool) FlagSeq {
	s := make(FlagSeq, n)
	for i := range s {
		s[i] = FlagGood
	}
	for i, bad := range preexistingBad {
		if i >= n {
			break
		}
		if bad {
			s[i] = FlagBad
		}
	}
	return s
}

// Raise sets the flag at i to f unless a higher-precedence flag is
// already present. Bad data is never lowered. Out-of-range indexes are
// ignored.
func (s FlagSeq) Raise(i int, f Flag) {
	if i < 0 || i >= len(s) {
		return
	}
	if flagRank(f) > flagRank(s[i]) {
		s[i] = f
	}
}

// RaiseRange raises every flag in [start, end).
func (s FlagSeq) RaiseRange(start, end int, f Flag) {
	for i := start; i < end; i++ {
		s.Raise(i, f)
	}
}

// ForceBad overwrites the flag at i with bad_data regardless of what is
// there. Used for operator-declared bad intervals, which are final.
func (s FlagSeq) ForceBad(i int) {
	if i < 0 || i >= len(s) {
		return
	}
	s[i] = FlagBad
}

// FlagRuns returns the contiguous [start, end) index runs where flags
// equal value.
func FlagRuns(flags []Flag, value Flag) []Period {
	var runs []Period
	start := -1
	for i, f := range flags {
		switch {
		case f == value && start < 0:
			start = i
		case f != value && start >= 0:
			runs = append(runs, Period{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Period{Start: start, End: len(flags)})
	}
	return runs
}

// FlagMetadata describes a flag variable the way the output product
// declares it: parallel flag_values / flag_meanings plus the usual
// identification attributes.
type FlagMetadata struct {
	Variable     string
	LongName     string
	StandardName string
	Units        string
	Values       []Flag
	Meanings     []string
}

// MeaningsAttr renders the flag meanings as the single space-separated
// attribute string convention used in the archive.
func (m FlagMetadata) MeaningsAttr() string {
	return strings.Join(m.Meanings, " ")
}

// TemperatureFlagMetadata returns the flag declaration for
// qc_flag_air_temperature.
func TemperatureFlagMetadata() FlagMetadata {
	return FlagMetadata{
		Variable:     "qc_flag_air_temperature",
		LongName:     "Data Quality flag: Air Temperature",
		StandardName: "quality_flag",
		Units:        "1",
		Values:       []Flag{FlagNotUsed, FlagGood, FlagBad, FlagPurge},
		Meanings: []string{
			"not_used",
			"good_data",
			"bad_data_measurement_suspect",
			"bad_data_purge_cycle_value_fixed_as_start_of_purge",
		},
	}
}

// HumidityFlagMetadata returns the flag declaration for
// qc_flag_relative_humidity, which adds the post-purge recovery code.
func HumidityFlagMetadata() FlagMetadata {
	return FlagMetadata{
		Variable:     "qc_flag_relative_humidity",
		LongName:     "Data Quality flag: Relative Humidity",
		StandardName: "quality_flag",
		Units:        "1",
		Values:       []Flag{FlagNotUsed, FlagGood, FlagBad, FlagPurge, FlagRecovery},
		Meanings: []string{
			"not_used",
			"good_data",
			"bad_data_measurement_suspect",
			"bad_data_purge_cycle_value_fixed_as_start_of_purge",
			"recovery_in_rh_after_purge",
		},
	}
}
