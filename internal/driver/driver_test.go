package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chilbolton/hmp155-qc/internal/archive"
	"github.com/chilbolton/hmp155-qc/internal/ingest"
	"github.com/chilbolton/hmp155-qc/internal/qc"
	"github.com/chilbolton/hmp155-qc/internal/store"
	"github.com/chilbolton/hmp155-qc/internal/store/drivers"
)

// rawTOA5Day renders a full day of minute TOA5 rows. RH sits flat at
// 45 for stamp minutes [flatStart, flatEnd) and alternates 50/52
// elsewhere, so flat detection fires only inside the stretch. Rows are
// stamped at the closing minute, ending on the next midnight.
func rawTOA5Day(date time.Time, flatStart, flatEnd int) string {
	var b strings.Builder
	b.WriteString("\"TOA5\",\"chilbolton\",\"CR1000X\",\"1234\",\"CR1000X.Std.03.02\",\"CPU:hmp155.CR1X\",\"5678\",\"Minute\"\n")
	b.WriteString("\"TIMESTAMP\",\"RECORD\",\"AirTC_Avg\",\"RH\"\n")
	b.WriteString("\"TS\",\"RN\",\"Deg C\",\"%\"\n")
	b.WriteString("\"\",\"\",\"Avg\",\"Smp\"\n")
	for m := 1; m <= 1440; m++ {
		ts := date.Add(time.Duration(m) * time.Minute)
		rh := 50.0 + 2.0*float64(m%2)
		temp := 12.0 + float64(m%2)
		if m >= flatStart && m < flatEnd {
			rh = 45.0
			temp = 12.0
		}
		fmt.Fprintf(&b, "\"%s\",%d,%.2f,%.2f\n", ts.Format("2006-01-02 15:04:05"), m, temp, rh)
	}
	return b.String()
}

func writeRaw(t *testing.T, rawDir string, date time.Time, contents string) {
	t.Helper()
	rel := archive.RelativeDayPath("chilbolton-hmp155", date)
	path := filepath.Join(rawDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newTestRunner(t *testing.T, rawDir string, client *archive.Client) (*Runner, *store.Store) {
	t.Helper()
	drivers.Ready()
	st, err := store.Open(store.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := NewRunner(qc.NewEngine(qc.DefaultParams()), st, client, Options{
		Station:    "chilbolton",
		RawDir:     rawDir,
		FilePrefix: "chilbolton-hmp155",
		Ingest:     ingest.DefaultOptions(),
	})
	return r, st
}

// TestRunnerProcessDayLocalFile runs one day from a local raw file and
// checks the stored artifact carries purge and recovery flags.
func TestRunnerProcessDayLocalFile(t *testing.T) {
	date := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	rawDir := t.TempDir()
	writeRaw(t, rawDir, date, rawTOA5Day(date, 600, 616))
	r, st := newTestRunner(t, rawDir, nil)

	outcome := r.ProcessDay(context.Background(), date, false)
	if outcome.Status != StatusProcessed {
		t.Fatalf("status = %s (%s)", outcome.Status, outcome.Error)
	}
	if outcome.Periods != 1 {
		t.Fatalf("purge periods = %d, want 1", outcome.Periods)
	}
	if outcome.Rescued {
		t.Fatalf("day with detected purge reported as rescued")
	}

	sd, err := st.LoadDay(context.Background(), "20200615")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if sd.Series.Len() != 1440 {
		t.Fatalf("stored series length = %d", sd.Series.Len())
	}
	// The flat stretch runs over samples [599, 615); expansion pads it
	// by four samples each side.
	if sd.RHFlags[600] != qc.FlagPurge || sd.TempFlags[600] != qc.FlagPurge {
		t.Fatalf("flags inside purge = rh %d temp %d", sd.RHFlags[600], sd.TempFlags[600])
	}
	if sd.RHFlags[616] != qc.FlagRecovery {
		t.Fatalf("rh flag after purge = %d, want recovery", sd.RHFlags[616])
	}
	if sd.TempFlags[616] != qc.FlagGood {
		t.Fatalf("temp flag after purge = %d, want good", sd.TempFlags[616])
	}
}

// TestRunnerProcessDaySkipsStored reruns a stored day and checks only
// force replaces the artifact.
func TestRunnerProcessDaySkipsStored(t *testing.T) {
	date := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	rawDir := t.TempDir()
	writeRaw(t, rawDir, date, rawTOA5Day(date, 600, 616))
	r, st := newTestRunner(t, rawDir, nil)
	ctx := context.Background()

	if out := r.ProcessDay(ctx, date, false); out.Status != StatusProcessed {
		t.Fatalf("first run status = %s (%s)", out.Status, out.Error)
	}
	first, err := st.LoadDay(ctx, "20200615")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}

	if out := r.ProcessDay(ctx, date, false); out.Status != StatusSkipped {
		t.Fatalf("second run status = %s, want skipped", out.Status)
	}
	same, err := st.LoadDay(ctx, "20200615")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if same.Record.RunID != first.Record.RunID {
		t.Fatalf("skip replaced the artifact: run %s -> %s", first.Record.RunID, same.Record.RunID)
	}

	if out := r.ProcessDay(ctx, date, true); out.Status != StatusProcessed {
		t.Fatalf("forced run status = %s (%s)", out.Status, out.Error)
	}
	replaced, err := st.LoadDay(ctx, "20200615")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if replaced.Record.RunID == first.Record.RunID {
		t.Fatalf("force did not replace the artifact")
	}
}

// TestRunnerProcessDayMissing reports missing when no raw source has
// the day.
func TestRunnerProcessDayMissing(t *testing.T) {
	r, _ := newTestRunner(t, t.TempDir(), nil)

	out := r.ProcessDay(context.Background(), time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC), false)
	if out.Status != StatusMissing {
		t.Fatalf("status = %s, want missing", out.Status)
	}
}

// TestRunnerFetchesFromArchive falls back to the archive when the
// local file is absent and mirrors the download for later runs.
func TestRunnerFetchesFromArchive(t *testing.T) {
	date := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/2020/202006/chilbolton-hmp155_20200615.dat" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(rawTOA5Day(date, 600, 616)))
	}))
	defer srv.Close()

	rawDir := t.TempDir()
	client := archive.NewClient(srv.URL, "chilbolton-hmp155", srv.Client())
	r, _ := newTestRunner(t, rawDir, client)

	out := r.ProcessDay(context.Background(), date, false)
	if out.Status != StatusProcessed {
		t.Fatalf("status = %s (%s)", out.Status, out.Error)
	}

	mirrored := filepath.Join(rawDir, "2020", "202006", "chilbolton-hmp155_20200615.dat")
	if _, err := os.Stat(mirrored); err != nil {
		t.Fatalf("fetched file was not mirrored: %v", err)
	}
}

// TestRunnerProcessRangeThreadsContext processes two days in one run:
// the second has no detectable purge and must inherit the first day's
// periods through the in-run context.
func TestRunnerProcessRangeThreadsContext(t *testing.T) {
	day1 := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	rawDir := t.TempDir()
	writeRaw(t, rawDir, day1, rawTOA5Day(day1, 600, 616))
	writeRaw(t, rawDir, day2, rawTOA5Day(day2, -1, -1))
	r, st := newTestRunner(t, rawDir, nil)

	report, err := r.ProcessRange(context.Background(), day1, day2, false)
	if err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}
	if report.Processed != 2 || report.Failed != 0 || report.Missing != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Fatalf("report has no run id")
	}

	second := report.Outcomes[1]
	if second.Day != "20200616" || second.Status != StatusProcessed {
		t.Fatalf("second outcome = %+v", second)
	}
	if !second.Rescued || second.Periods != 1 {
		t.Fatalf("second day not rescued from first: %+v", second)
	}

	sd, err := st.LoadDay(context.Background(), "20200616")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if !sd.Record.Rescued {
		t.Fatalf("stored record not marked rescued")
	}
	if sd.RHFlags[605] != qc.FlagPurge {
		t.Fatalf("rescued purge flag at 605 = %d", sd.RHFlags[605])
	}
}

// TestRunnerProcessRangeSeedsContextFromStore starts a range right
// after an already-stored day and expects the stored artifact to feed
// the cross-midnight checks.
func TestRunnerProcessRangeSeedsContextFromStore(t *testing.T) {
	day1 := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	rawDir := t.TempDir()
	writeRaw(t, rawDir, day1, rawTOA5Day(day1, 600, 616))
	writeRaw(t, rawDir, day2, rawTOA5Day(day2, -1, -1))
	r, _ := newTestRunner(t, rawDir, nil)
	ctx := context.Background()

	if out := r.ProcessDay(ctx, day1, false); out.Status != StatusProcessed {
		t.Fatalf("day1 status = %s (%s)", out.Status, out.Error)
	}

	report, err := r.ProcessRange(ctx, day2, day2, false)
	if err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if out := report.Outcomes[0]; !out.Rescued || out.Periods != 1 {
		t.Fatalf("day2 did not inherit stored context: %+v", out)
	}
}

// TestRunnerProcessRangeRejectsBackwardsRange checks range validation.
func TestRunnerProcessRangeRejectsBackwardsRange(t *testing.T) {
	r, _ := newTestRunner(t, t.TempDir(), nil)

	from := time.Date(2020, 6, 16, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	if _, err := r.ProcessRange(context.Background(), from, to, false); err == nil {
		t.Fatalf("backwards range accepted")
	}
}
