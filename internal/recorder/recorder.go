// Package recorder writes periodic bridge status snapshots to CSV files.
package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// Recorder records timestamped status snapshots to CSV files with automatic
// rotation.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	log      *log.Logger
	now      func() time.Time

	file   *os.File
	writer *csv.Writer
	path   string
	lastTs time.Time
	rows   int
}

// Config holds recorder configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

// Sample is one status snapshot.
type Sample struct {
	Conn      string
	Disc      uint8
	Track     uint8
	Minutes   uint8
	Seconds   uint8
	PlayState string
	Title     string
	Artist    string
}

const (
	DefaultPath     = "/var/log/cdcbridge"
	DefaultInterval = time.Second

	maxRowsPerFile = 100_000
)

var csvHeader = []string{
	"timestamp", "bt_state", "disc", "track", "time", "play_state", "title", "artist",
}

// New creates a recorder. Files are opened lazily on the first Record.
func New(cfg Config, logger *log.Logger) *Recorder {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Recorder{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		log:      logger,
		now:      time.Now,
	}
}

// SetEnabled toggles recording at runtime. Disabling closes the current file.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Path returns the file currently written, or "".
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Run records sample() every interval until ctx is done, then closes the
// file.
func (r *Recorder) Run(ctx context.Context, sample func() Sample) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Record(sample())
		}
	}
}

// Record writes a snapshot if the minimum interval has elapsed. It reports
// whether a row was written.
func (r *Recorder) Record(s Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return false
	}

	now := r.now()
	if !r.lastTs.IsZero() && now.Sub(r.lastTs) < r.interval {
		return false
	}
	r.lastTs = now

	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotateFile(now); err != nil {
			r.log.Warnf("rotate failed: %v", err)
			return false
		}
	}

	if err := r.writer.Write(buildRow(now, s)); err != nil {
		r.log.Warnf("write failed: %v", err)
		return false
	}
	r.writer.Flush()
	r.rows++
	return true
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("recorder: mkdir %s: %w", r.dir, err)
	}

	name := fmt.Sprintf("cdcbridge_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", path, err)
	}

	r.file = f
	r.path = path
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	r.log.Infof("opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.path = ""
}

func buildRow(ts time.Time, s Sample) []string {
	return []string{
		ts.Format(time.RFC3339Nano),
		s.Conn,
		strconv.Itoa(int(s.Disc)),
		strconv.Itoa(int(s.Track)),
		fmt.Sprintf("%d:%02d", s.Minutes, s.Seconds),
		s.PlayState,
		s.Title,
		s.Artist,
	}
}
