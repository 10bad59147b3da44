// Package corrections reads operator-maintained correction files that
// declare intervals of known-bad data.
package corrections

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"
)

// timeLayout parses the concatenated date and clock fields of a
// correction line.
const timeLayout = "20060102150405"

// BadInterval is an operator-declared interval of bad data. Both
// endpoints are inclusive.
type BadInterval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the interval, endpoints
// included.
func (iv BadInterval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// ParseFile reads a correction file from disk. A missing or unreadable
// file is an error; malformed lines inside it are not.
func ParseFile(path string) ([]BadInterval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f), nil
}

// Parse reads correction lines of the form
//
//	YYYYMMDD HHMMSS HHMMSS LABEL
//
// and returns the intervals labelled BADDATA. Lines with a different
// label, the wrong field count, or unparseable fields are skipped
// without comment: the files are hand-edited and stray lines are
// routine.
func Parse(r io.Reader) []BadInterval {
	var intervals []BadInterval
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 || fields[3] != "BADDATA" {
			continue
		}
		start, err := time.ParseInLocation(timeLayout, fields[0]+fields[1], time.UTC)
		if err != nil {
			continue
		}
		end, err := time.ParseInLocation(timeLayout, fields[0]+fields[2], time.UTC)
		if err != nil {
			continue
		}
		intervals = append(intervals, BadInterval{Start: start, End: end})
	}
	return intervals
}
