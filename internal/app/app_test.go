package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/native"
	"github.com/apuctl/apuctl/internal/infra/sqlite"
	"github.com/apuctl/apuctl/internal/session"
)

func newTestService(t *testing.T) (*ProfileService, *native.Simulated) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sim := native.NewSimulated(native.DefaultSimConfig())
	m := session.New(sim)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("session Open() error: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	return NewProfileService(db, m, nil), sim
}

// ─── Profile Files ──────────────────────────────────────────────────────────

func TestParseProfile_YAML(t *testing.T) {
	input := `name: battery
settings:
  stapm_limit: 12000
  tctl_temp: 80
`
	p, err := ParseProfile([]byte(input), FormatYAML, "ignored")
	if err != nil {
		t.Fatalf("ParseProfile() error: %v", err)
	}
	if p.Name != "battery" {
		t.Errorf("Name = %q, want battery", p.Name)
	}
	if p.Settings["stapm_limit"] != 12000 || p.Settings["tctl_temp"] != 80 {
		t.Errorf("Settings = %v", p.Settings)
	}
}

func TestParseProfile_TOMLFallbackName(t *testing.T) {
	input := `[settings]
fast_limit = 30000
slow_limit = 25000
`
	p, err := ParseProfile([]byte(input), FormatTOML, "perf")
	if err != nil {
		t.Fatalf("ParseProfile() error: %v", err)
	}
	if p.Name != "perf" {
		t.Errorf("Name = %q, want perf", p.Name)
	}
	if p.Settings["fast_limit"] != 30000 {
		t.Errorf("fast_limit = %d, want 30000", p.Settings["fast_limit"])
	}
}

func TestParseProfile_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format ProfileFormat
	}{
		{"unknown param", "name: x\nsettings:\n  turbo: 1\n", FormatYAML},
		{"read-only param", "name: x\nsettings:\n  socket_power: 1\n", FormatYAML},
		{"negative value", "name: x\nsettings:\n  stapm_limit: -1\n", FormatYAML},
		{"no settings", "name = \"x\"\n", FormatTOML},
		{"broken toml", "[settings\n", FormatTOML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.input), tt.format, "x")
			if !errors.Is(err, domain.ErrProfileInvalid) {
				t.Errorf("ParseProfile() error = %v, want ErrProfileInvalid", err)
			}
		})
	}
}

func TestProfileFile_WriteRead(t *testing.T) {
	dir := t.TempDir()
	p := domain.Profile{Name: "quiet", Settings: map[string]uint32{"stapm_limit": 8000, "slow_time": 10}}

	for _, ext := range []string{".yaml", ".toml"} {
		path := filepath.Join(dir, "quiet"+ext)
		if err := WriteProfileFile(path, p); err != nil {
			t.Fatalf("WriteProfileFile(%s) error: %v", ext, err)
		}
		got, err := ReadProfileFile(path)
		if err != nil {
			t.Fatalf("ReadProfileFile(%s) error: %v", ext, err)
		}
		if got.Name != "quiet" || got.Settings["stapm_limit"] != 8000 || got.Settings["slow_time"] != 10 {
			t.Errorf("%s: got %+v", ext, got)
		}
	}

	if _, err := FormatFromPath("profile.json"); !errors.Is(err, domain.ErrProfileInvalid) {
		t.Errorf("FormatFromPath(.json) error = %v, want ErrProfileInvalid", err)
	}
}

// ─── Profile Service ────────────────────────────────────────────────────────

func TestProfileService_SaveApplyHistory(t *testing.T) {
	svc, sim := newTestService(t)
	ctx := context.Background()

	p := domain.Profile{Name: "cool", Settings: map[string]uint32{"stapm_limit": 15000, "tctl_temp": 85}}
	if err := svc.Save(p); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rec, err := svc.ApplyNamed(ctx, "cool")
	if err != nil {
		t.Fatalf("ApplyNamed() error: %v", err)
	}
	if !rec.Succeeded() || len(rec.Applied) != 2 || rec.ID == "" {
		t.Errorf("record = %+v", rec)
	}
	if v, _ := sim.Limit(domain.SetTctlTemp); v != 85 {
		t.Errorf("tctl limit = %d, want 85", v)
	}

	hist, err := svc.History(10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(hist) != 1 || hist[0].Profile != "cool" {
		t.Errorf("History() = %+v", hist)
	}
}

func TestProfileService_PartialFailureRecorded(t *testing.T) {
	svc, sim := newTestService(t)
	sim.FailSet(domain.SetTctlTemp, int(domain.ErrCommTimeout))

	p := domain.Profile{Name: "hot", Settings: map[string]uint32{
		"stapm_limit": 30000, "tctl_temp": 100, "vrm_current": 60000,
	}}
	rec, err := svc.Apply(context.Background(), p)
	if !errors.Is(err, domain.ErrCommTimeout) {
		t.Fatalf("Apply() error = %v, want ErrCommTimeout", err)
	}
	if rec.FailedParam != "tctl_temp" {
		t.Errorf("FailedParam = %q, want tctl_temp", rec.FailedParam)
	}

	hist, _ := svc.History(1)
	if len(hist) != 1 {
		t.Fatalf("History() len = %d, want 1", len(hist))
	}
	if hist[0].Succeeded() || len(hist[0].Applied) != 1 || hist[0].Applied[0] != "stapm_limit" {
		t.Errorf("history record = %+v", hist[0])
	}
}

func TestProfileService_ImportExport(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "office.yml")
	if err := os.WriteFile(src, []byte("settings:\n  slow_limit: 20000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := svc.Import(src)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if p.Name != "office" {
		t.Errorf("Name = %q, want office (from file name)", p.Name)
	}

	dst := filepath.Join(dir, "out.toml")
	if err := svc.Export("office", dst); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if !strings.Contains(string(data), "slow_limit = 20000") {
		t.Errorf("exported toml = %q", data)
	}

	if err := svc.Export("missing", dst); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("Export(missing) error = %v, want ErrProfileNotFound", err)
	}
}

func TestProfileService_NoDevice(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	svc := NewProfileService(db, nil, nil)
	_, err = svc.Apply(context.Background(), domain.Profile{Name: "x", Settings: map[string]uint32{"stapm_limit": 1}})
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Apply() without device error = %v, want ErrSessionClosed", err)
	}
}
