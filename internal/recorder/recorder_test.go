package recorder

import (
	"encoding/csv"
	"os"
	"testing"
	"time"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRecorder(t *testing.T, intervalMs int) (*Recorder, *time.Time) {
	t.Helper()
	now := t0
	r := New(Config{Enabled: true, Path: t.TempDir(), IntervalMs: intervalMs}, nil)
	r.now = func() time.Time { return now }
	t.Cleanup(r.Close)
	return r, &now
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRecordWritesHeaderAndRow(t *testing.T) {
	r, _ := newTestRecorder(t, 1000)
	ok := r.Record(Sample{
		Conn: "PLAYING", Disc: 1, Track: 5, Minutes: 3, Seconds: 7,
		PlayState: "PLAYING", Title: "Song, Part 1", Artist: "Band",
	})
	if !ok {
		t.Fatal("Record returned false")
	}
	rows := readRows(t, r.Path())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "timestamp" || len(rows[0]) != len(csvHeader) {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{t0.Format(time.RFC3339Nano), "PLAYING", "1", "5", "3:07", "PLAYING", "Song, Part 1", "Band"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("col %d = %q, want %q", i, rows[1][i], want[i])
		}
	}
}

func TestRecordIntervalGate(t *testing.T) {
	r, now := newTestRecorder(t, 1000)
	if !r.Record(Sample{}) {
		t.Fatal("first record skipped")
	}
	*now = now.Add(500 * time.Millisecond)
	if r.Record(Sample{}) {
		t.Error("record within interval written")
	}
	*now = now.Add(500 * time.Millisecond)
	if !r.Record(Sample{}) {
		t.Error("record after interval skipped")
	}
	if rows := readRows(t, r.Path()); len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
}

func TestRecordDisabled(t *testing.T) {
	r, _ := newTestRecorder(t, 1000)
	r.SetEnabled(false)
	if r.Record(Sample{}) {
		t.Error("disabled recorder wrote a row")
	}
	if r.Path() != "" {
		t.Errorf("path = %q, want none", r.Path())
	}
	r.SetEnabled(true)
	if !r.IsEnabled() || !r.Record(Sample{}) {
		t.Error("re-enabled recorder did not write")
	}
}

func TestRotateAfterMaxRows(t *testing.T) {
	r, now := newTestRecorder(t, 50)
	r.Record(Sample{})
	first := r.Path()
	r.rows = maxRowsPerFile
	*now = now.Add(time.Second)
	r.Record(Sample{})
	if r.Path() == first {
		t.Fatal("file not rotated")
	}
	if rows := readRows(t, r.Path()); len(rows) != 2 {
		t.Errorf("rows in new file = %d, want 2", len(rows))
	}
}

func TestDefaultInterval(t *testing.T) {
	r := New(Config{IntervalMs: 10}, nil)
	if r.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", r.interval, DefaultInterval)
	}
	if r.dir != DefaultPath {
		t.Errorf("dir = %q", r.dir)
	}
}
