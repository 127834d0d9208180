package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if cfg.BT.BaudRate != 115200 || cfg.CDC.TickMs != 50 || cfg.Server.ListenAddr != ":8080" {
		t.Errorf("defaults = %+v %+v %+v", cfg.BT, cfg.CDC, cfg.Server)
	}
	if cfg.Tick() != 50*time.Millisecond {
		t.Errorf("tick = %v", cfg.Tick())
	}
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "bt:\n  type: serial\n  port_path: /dev/ttyAMA0\ncdc:\n  type: spi\nevents:\n  redis_url: redis://localhost:6379/0\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nRECORD_PATH=\"/tmp/rec\"\nBT_PORT=/dev/ignored\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BT_PORT", "/dev/ttyUSB0")
	t.Setenv("RECORD_PATH", "")
	t.Setenv("BT_BAUD", "9600")
	t.Setenv("RECORD_ENABLED", "yes")

	cfg := LoadConfig(path, nil)
	if cfg.BT.Type != "serial" || cfg.CDC.Type != "spi" {
		t.Errorf("yaml not applied: %+v %+v", cfg.BT, cfg.CDC)
	}
	if cfg.BT.PortPath != "/dev/ttyUSB0" {
		t.Errorf("real env should win over .env: %q", cfg.BT.PortPath)
	}
	if cfg.BT.BaudRate != 9600 {
		t.Errorf("baud = %d", cfg.BT.BaudRate)
	}
	if cfg.Recorder.Path != "/tmp/rec" || !cfg.Recorder.Enabled {
		t.Errorf("recorder = %+v", cfg.Recorder)
	}
	if cfg.Events.URL != "redis://localhost:6379/0" || cfg.Events.Channel == "" {
		t.Errorf("events = %+v", cfg.Events)
	}
	// Defaults survive a partial file.
	if cfg.Bridge.StartupVolume != 15 {
		t.Errorf("startup volume = %d", cfg.Bridge.StartupVolume)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bt: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := LoadConfig(path, nil)
	if cfg.BT.Type != "demo" {
		t.Errorf("bad yaml should fall back to defaults, got %+v", cfg.BT)
	}
}

func TestUpdateFromJSONDeepMerge(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.UpdateFromJSON([]byte(`{"bt":{"pollIntervalMs":1000},"bridge":{"debounceMs":200}}`)); err != nil {
		t.Fatal(err)
	}
	if cfg.BT.PollIntervalMs != 1000 || cfg.BT.PortPath != "/dev/ttyS0" {
		t.Errorf("bt = %+v", cfg.BT)
	}
	if got := cfg.BTModule().PollInterval; got != time.Second {
		t.Errorf("poll interval = %v", got)
	}
	b := cfg.BridgeTiming()
	if b.Debounce != 200*time.Millisecond || b.DoublePress != 500*time.Millisecond || b.StartupVolume != 15 {
		t.Errorf("bridge timing = %+v", b)
	}
}
