// Package daemon manages the apuctl daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/apuctl/apuctl/internal/infra/monitor"
	"github.com/apuctl/apuctl/internal/infra/native"
)

// Config holds all daemon configuration.
type Config struct {
	Device    DeviceConfig    `toml:"device"`
	API       APIConfig       `toml:"api"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// DeviceConfig selects and tunes the driver.
type DeviceConfig struct {
	Driver    string `toml:"driver"`     // "ryzenadj" or "simulated"
	Cores     int    `toml:"cores"`      // 0 = unknown
	InitTable bool   `toml:"init_table"` // initialize the metrics table at startup
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// MonitorConfig controls the telemetry poller.
type MonitorConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    string   `toml:"interval"`
	Params      []string `toml:"params"`
	ThermalWarn float64  `toml:"thermal_warn"`
	SpikeSigma  float64  `toml:"spike_sigma"` // 0 disables spike detection
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	mon := monitor.DefaultConfig()
	return Config{
		Device: DeviceConfig{
			Driver:    native.DriverRyzenAdj,
			InitTable: true,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 11535,
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Interval:    mon.Interval.String(),
			Params:      mon.Params,
			ThermalWarn: mon.ThermalWarn,
			SpikeSigma:  mon.SpikeSigma,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.apuctl/config.toml, falling back to
// defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(configPath())
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.apuctl/config.toml.
func SaveConfig(cfg Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// MonitorSettings converts the [monitor] section for the poller.
func (c Config) MonitorSettings() monitor.Config {
	return monitor.Config{
		Interval:     parseDuration(c.Monitor.Interval, monitor.DefaultConfig().Interval),
		Params:       c.Monitor.Params,
		Cores:        c.Device.Cores,
		RefreshTable: c.Device.InitTable,
		ThermalWarn:  c.Monitor.ThermalWarn,
		SpikeSigma:   c.Monitor.SpikeSigma,

		BreakerThreshold: monitor.DefaultConfig().BreakerThreshold,
		BreakerReset:     monitor.DefaultConfig().BreakerReset,
	}
}

// NewLogger builds the process logger from the [logging] section.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func configPath() string { return filepath.Join(apuctlHome(), "config.toml") }

// apuctlHome returns the apuctl data directory.
func apuctlHome() string {
	if env := os.Getenv("APUCTL_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".apuctl")
}

// Home returns the apuctl data directory ($APUCTL_HOME or ~/.apuctl).
func Home() string {
	return apuctlHome()
}
