package corrections

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestParse checks that only well-formed BADDATA lines produce
// intervals and everything else is skipped quietly.
func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"20200615 101500 103000 BADDATA",
		"20200616 080000 081500 SUSPECT",     // wrong label
		"20200617 090000 091500",             // missing label
		"2020x617 090000 091500 BADDATA",     // bad date
		"20200618 960000 091500 BADDATA",     // bad clock
		"20200619 110000 113000 BADDATA ext", // extra field
		"",
		"20201201 000000 235959 BADDATA",
	}, "\n")

	intervals := Parse(strings.NewReader(input))

	if len(intervals) != 2 {
		t.Fatalf("got %d intervals %v, want 2", len(intervals), intervals)
	}
	want := BadInterval{
		Start: time.Date(2020, 6, 15, 10, 15, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 15, 10, 30, 0, 0, time.UTC),
	}
	if intervals[0] != want {
		t.Fatalf("intervals[0] = %+v, want %+v", intervals[0], want)
	}
	if intervals[1].End.Hour() != 23 || intervals[1].End.Second() != 59 {
		t.Fatalf("intervals[1] = %+v, want a full-day interval", intervals[1])
	}
}

// TestBadIntervalContains pins the inclusive endpoints.
func TestBadIntervalContains(t *testing.T) {
	iv := BadInterval{
		Start: time.Date(2020, 6, 15, 10, 15, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 15, 10, 30, 0, 0, time.UTC),
	}

	if !iv.Contains(iv.Start) || !iv.Contains(iv.End) {
		t.Fatal("endpoints must be inside the interval")
	}
	if iv.Contains(iv.Start.Add(-time.Second)) || iv.Contains(iv.End.Add(time.Second)) {
		t.Fatal("samples outside the interval must not match")
	}
}

// TestParseFile reads a real file and propagates open errors.
func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.txt")
	content := "20200615 101500 103000 BADDATA\nnonsense line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	intervals, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("got %d intervals, want 1", len(intervals))
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("want an error for a missing file")
	}
}
