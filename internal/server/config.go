package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/cdc-bridge/internal/bridge"
	"github.com/shaunagostinho/cdc-bridge/internal/bt"
	"github.com/shaunagostinho/cdc-bridge/internal/events"
	"github.com/shaunagostinho/cdc-bridge/internal/log"
	"github.com/shaunagostinho/cdc-bridge/internal/recorder"
)

// DefaultConfigPath is where the config lives on the device.
const DefaultConfigPath = "/etc/cdcbridge/config.yaml"

// Config holds all bridge configuration.
type Config struct {
	mu sync.RWMutex

	// Bluetooth module UART
	BT BTConfig `yaml:"bt" json:"bt"`

	// Head unit bus and DataOut line
	CDC CDCConfig `yaml:"cdc" json:"cdc"`

	// Button and display policy
	Bridge BridgeConfig `yaml:"bridge" json:"bridge"`

	Logging  LoggingConfig   `yaml:"logging" json:"logging"`
	Recorder recorder.Config `yaml:"recorder" json:"recorder"`
	Events   events.Config   `yaml:"events" json:"events"`
	Server   ServerConfig    `yaml:"server" json:"server"`

	path string // file path for save/load
}

type BTConfig struct {
	Type             string `yaml:"type" json:"type"`          // "serial" or "demo"
	PortPath         string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyS0
	BaudRate         int    `yaml:"baud_rate" json:"baudRate"`
	PollIntervalMs   int    `yaml:"poll_interval_ms" json:"pollIntervalMs"`
	CommandTimeoutMs int    `yaml:"command_timeout_ms" json:"commandTimeoutMs"`
}

type CDCConfig struct {
	Type       string `yaml:"type" json:"type"`              // "spi" or "demo"
	SPIPort    string `yaml:"spi_port" json:"spiPort"`       // periph name, "" for the first bus
	DataOutPin string `yaml:"dataout_pin" json:"dataoutPin"` // e.g. GPIO17
	TickMs     int    `yaml:"tick_ms" json:"tickMs"`
}

type BridgeConfig struct {
	DebounceMs      int `yaml:"debounce_ms" json:"debounceMs"`
	DoublePressMs   int `yaml:"double_press_ms" json:"doublePressMs"`
	IndicatorMs     int `yaml:"indicator_ms" json:"indicatorMs"`
	ConnectedHoldMs int `yaml:"connected_hold_ms" json:"connectedHoldMs"`
	StartupVolume   int `yaml:"startup_volume" json:"startupVolume"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // "info", "debug" or "verbose"
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BT: BTConfig{
			Type:             "demo",
			PortPath:         "/dev/ttyS0",
			BaudRate:         115200,
			PollIntervalMs:   3000,
			CommandTimeoutMs: 2000,
		},
		CDC: CDCConfig{
			Type:       "demo",
			DataOutPin: "GPIO17",
			TickMs:     50,
		},
		Bridge: BridgeConfig{
			DebounceMs:      300,
			DoublePressMs:   500,
			IndicatorMs:     500,
			ConnectedHoldMs: 5000,
			StartupVolume:   15,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Recorder: recorder.Config{
			Enabled:    false,
			Path:       recorder.DefaultPath,
			IntervalMs: 1000,
		},
		Events: events.Config{
			Channel:  events.DefaultChannel,
			Encoding: events.EncodingJSON,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string, logger *log.Logger) *Config {
	if logger == nil {
		logger = log.Nop()
	}
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Infof("no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Warnf("error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		logger.Infof("loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep, logger)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string, logger *log.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	logger.Infof("loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: BT_TYPE, BT_PORT, BT_BAUD, CDC_TYPE, CDC_SPI_PORT,
// CDC_DATAOUT_PIN, LISTEN_ADDR, LOG_LEVEL, RECORD_ENABLED, RECORD_PATH,
// RECORD_INTERVAL_MS, EVENTS_REDIS_URL, EVENTS_CHANNEL, EVENTS_ENCODING
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BT_TYPE"); v != "" {
		c.BT.Type = v
	}
	if v := os.Getenv("BT_PORT"); v != "" {
		c.BT.PortPath = v
	}
	if v := os.Getenv("BT_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BT.BaudRate = n
		}
	}
	if v := os.Getenv("CDC_TYPE"); v != "" {
		c.CDC.Type = v
	}
	if v := os.Getenv("CDC_SPI_PORT"); v != "" {
		c.CDC.SPIPort = v
	}
	if v := os.Getenv("CDC_DATAOUT_PIN"); v != "" {
		c.CDC.DataOutPin = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	// Recorder
	if v := os.Getenv("RECORD_ENABLED"); v != "" {
		c.Recorder.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("RECORD_PATH"); v != "" {
		c.Recorder.Path = v
	}
	if v := os.Getenv("RECORD_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Recorder.IntervalMs = n
		}
	}
	// Events
	if v := os.Getenv("EVENTS_REDIS_URL"); v != "" {
		c.Events.URL = v
	}
	if v := os.Getenv("EVENTS_CHANNEL"); v != "" {
		c.Events.Channel = v
	}
	if v := os.Getenv("EVENTS_ENCODING"); v != "" {
		c.Events.Encoding = v
	}
}

// BTModule returns the module driver settings.
func (c *Config) BTModule() bt.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bt.Config{
		PollInterval:   ms(c.BT.PollIntervalMs),
		CommandTimeout: ms(c.BT.CommandTimeoutMs),
	}
}

// BridgeTiming returns the bridge settings. Zero values fall back to the
// bridge defaults.
func (c *Config) BridgeTiming() bridge.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bridge.Config{
		Debounce:      ms(c.Bridge.DebounceMs),
		DoublePress:   ms(c.Bridge.DoublePressMs),
		Indicator:     ms(c.Bridge.IndicatorMs),
		ConnectedHold: ms(c.Bridge.ConnectedHoldMs),
		StartupVolume: c.Bridge.StartupVolume,
	}
}

// Tick returns the frame period towards the head unit.
func (c *Config) Tick() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ms(c.CDC.TickMs)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
