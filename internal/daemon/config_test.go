package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apuctl/apuctl/internal/infra/native"
	"github.com/apuctl/apuctl/internal/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 11535 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 11535)
	}
	if cfg.Device.Driver != native.DriverRyzenAdj {
		t.Errorf("Device.Driver = %q, want %q", cfg.Device.Driver, native.DriverRyzenAdj)
	}
	if cfg.Monitor.Interval != "2s" {
		t.Errorf("Monitor.Interval = %q, want 2s", cfg.Monitor.Interval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[device]
driver = "simulated"
cores = 8

[monitor]
interval = "500ms"
params = ["socket_power"]

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Device.Driver != "simulated" || cfg.Device.Cores != 8 {
		t.Errorf("Device = %+v", cfg.Device)
	}
	// Unset keys keep their defaults.
	if cfg.API.Port != 11535 {
		t.Errorf("API.Port = %d, want default 11535", cfg.API.Port)
	}

	mon := cfg.MonitorSettings()
	if mon.Interval != 500*time.Millisecond {
		t.Errorf("monitor interval = %v, want 500ms", mon.Interval)
	}
	if mon.Cores != 8 || len(mon.Params) != 1 {
		t.Errorf("monitor settings = %+v", mon)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Error("missing file should yield defaults")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("APUCTL_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Device.Driver = native.DriverSimulated
	cfg.API.Port = 12000
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Device.Driver != native.DriverSimulated || got.API.Port != 12000 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"5s", 5 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"", time.Second},
		{"soon", time.Second},
		{"-1s", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Second); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("output = %q, want json warn line", out)
	}
	if parseLevel("DEBUG") != slog.LevelDebug {
		t.Error("parseLevel should be case-insensitive")
	}
}

// ─── Daemon Wiring ──────────────────────────────────────────────────────────

func TestDaemon_SimulatedDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Driver = native.DriverSimulated
	cfg.Logging.Level = "error"

	d, err := newDaemon(cfg, t.TempDir())
	if err != nil {
		t.Fatalf("newDaemon() error: %v", err)
	}
	defer d.Close()

	if d.Session.State() != session.StateUninitialized {
		t.Errorf("session should not be opened by New, state = %v", d.Session.State())
	}
	if err := d.OpenDevice(context.Background()); err != nil {
		t.Fatalf("OpenDevice() error: %v", err)
	}
	if d.Session.State() != session.StateTableReady {
		t.Errorf("State() = %v, want table_ready", d.Session.State())
	}
	if fam, _ := d.DB.GetDeviceInfo("family"); fam != "Phoenix" {
		t.Errorf("stored family = %q, want Phoenix", fam)
	}
	if v, _ := d.DB.GetDeviceInfo("bios_if_ver"); v != "5" {
		t.Errorf("stored bios_if_ver = %q, want 5", v)
	}

	d.Close()
	if d.Session.State() != session.StateClosed {
		t.Errorf("State() after Close = %v, want closed", d.Session.State())
	}
}

func TestDaemon_UnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Driver = "nvml"
	if _, err := newDaemon(cfg, t.TempDir()); err == nil {
		t.Error("newDaemon() should fail for an unknown driver")
	}
}

func TestDaemon_DeviceInfoErrorsAreLogged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Driver = native.DriverSimulated
	cfg.Logging.Level = "error"

	d, err := newDaemon(cfg, t.TempDir())
	if err != nil {
		t.Fatalf("newDaemon() error: %v", err)
	}
	var buf bytes.Buffer
	d.Log = slog.New(slog.NewTextHandler(&buf, nil))

	// A closed store makes every write fail.
	d.DB.Close()
	if err := d.OpenDevice(context.Background()); err != nil {
		t.Fatalf("OpenDevice() error: %v", err)
	}
	d.Session.Close()

	if !strings.Contains(buf.String(), "record device info") {
		t.Errorf("expected a warning for the failed write, got:\n%s", buf.String())
	}
}

func TestTableMaxAge(t *testing.T) {
	if got := tableMaxAge(nil); got != 2*time.Minute {
		t.Errorf("tableMaxAge(nil) = %s, want 2m", got)
	}
}
