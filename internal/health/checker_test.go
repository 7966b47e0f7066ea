package health

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/native"
	"github.com/apuctl/apuctl/internal/infra/sqlite"
	"github.com/apuctl/apuctl/internal/session"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeSession struct {
	state  session.State
	family domain.Family
}

func (f fakeSession) State() session.State  { return f.state }
func (f fakeSession) Family() domain.Family { return f.family }

type fakeMonitor struct {
	sample domain.Sample
	ok     bool
}

func (f fakeMonitor) Latest() (domain.Sample, bool) { return f.sample, f.ok }
func (f fakeMonitor) Interval() time.Duration       { return 2 * time.Second }

var liveSession = fakeSession{state: session.StateTableReady, family: domain.FamilyPhoenix}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	db := newTestDB(t)

	if c := NewChecker(db, liveSession, nil); len(c.checks) != 2 {
		t.Errorf("checks without monitor = %d, want 2", len(c.checks))
	}
	if c := NewChecker(db, liveSession, fakeMonitor{}); len(c.checks) != 3 {
		t.Errorf("checks with monitor = %d, want 3", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	db := newTestDB(t)
	mon := fakeMonitor{sample: domain.Sample{TakenAt: time.Now()}, ok: true}

	c := NewChecker(db, liveSession, mon)
	statuses := c.RunOnce(context.Background())
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), liveSession, nil)

	// No statuses yet: vacuously healthy.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_SessionCheck(t *testing.T) {
	tests := []struct {
		name    string
		sess    fakeSession
		healthy bool
	}{
		{"table ready", liveSession, true},
		{"acquired", fakeSession{session.StateAcquired, domain.FamilyRembrandt}, true},
		{"closed", fakeSession{session.StateClosed, domain.FamilyPhoenix}, false},
		{"uninitialized", fakeSession{session.StateUninitialized, domain.FamilyPhoenix}, false},
		{"unsupported family", fakeSession{session.StateAcquired, domain.FamilyUnknown}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSession(tt.sess)
			if (err == nil) != tt.healthy {
				t.Errorf("checkSession() error = %v, healthy want %v", err, tt.healthy)
			}
		})
	}
}

func TestChecker_TelemetryCheck(t *testing.T) {
	now := time.Now()

	if err := checkTelemetry(fakeMonitor{}, now); !errors.Is(err, errNoSample) {
		t.Errorf("no sample: error = %v, want errNoSample", err)
	}

	fresh := fakeMonitor{sample: domain.Sample{TakenAt: now.Add(-time.Second)}, ok: true}
	if err := checkTelemetry(fresh, now); err != nil {
		t.Errorf("fresh sample: error = %v", err)
	}

	stale := fakeMonitor{sample: domain.Sample{TakenAt: now.Add(-time.Minute)}, ok: true}
	if err := checkTelemetry(stale, now); err == nil {
		t.Error("stale sample should fail")
	}

	broken := fakeMonitor{sample: domain.Sample{
		TakenAt: now,
		Errors:  map[string]string{"table": "refresh_table: communication timeout"},
	}, ok: true}
	if err := checkTelemetry(broken, now); err == nil {
		t.Error("failed table refresh should fail the check")
	}
}

func TestChecker_FailingCheckRunsRecovery(t *testing.T) {
	recovered := false
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
				RecoverFn: func(ctx context.Context) error {
					recovered = true
					return nil
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
	if !recovered {
		t.Error("RecoverFn should run after a failed check")
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := NewChecker(newTestDB(t), liveSession, nil)
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()

	if len(s1) > 0 {
		s1[0].Healthy = false
		if !s2[0].Healthy {
			t.Error("Statuses() should return a copy, not a reference")
		}
	}
}

// ─── Metrics Table ──────────────────────────────────────────────────────────

type fakeTable struct {
	state     session.State
	age       time.Duration
	aged      bool
	refreshes int
}

func (f *fakeTable) State() session.State                { return f.state }
func (f *fakeTable) TableAge() (time.Duration, bool)     { return f.age, f.aged }
func (f *fakeTable) InitTable(ctx context.Context) error { return nil }
func (f *fakeTable) Refresh(ctx context.Context) error {
	f.refreshes++
	return nil
}

func TestCheckTable(t *testing.T) {
	tests := []struct {
		name    string
		table   fakeTable
		healthy bool
	}{
		{"fresh", fakeTable{state: session.StateTableReady, age: time.Second, aged: true}, true},
		{"stale", fakeTable{state: session.StateTableReady, age: 5 * time.Minute, aged: true}, false},
		{"never refreshed", fakeTable{state: session.StateTableReady}, false},
		{"not initialized", fakeTable{state: session.StateAcquired}, false},
		{"closed", fakeTable{state: session.StateClosed}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTable(&tt.table, time.Minute)
			if (err == nil) != tt.healthy {
				t.Errorf("checkTable() error = %v, healthy want %v", err, tt.healthy)
			}
		})
	}
}

func TestWatchTable_RefreshesStaleTable(t *testing.T) {
	tbl := &fakeTable{state: session.StateTableReady, age: 10 * time.Minute, aged: true}
	c := NewChecker(newTestDB(t), liveSession, nil)
	c.WatchTable(tbl, time.Minute)

	c.RunOnce(context.Background())
	if tbl.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", tbl.refreshes)
	}
}

func TestWatchTable_RetriesInitTable(t *testing.T) {
	ctx := context.Background()
	sim := native.NewSimulated(native.DefaultSimConfig())
	sim.FailInitTable(-3)
	sess := session.New(sim)
	if err := sess.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	if err := sess.InitTable(ctx); err == nil {
		t.Fatal("InitTable() should fail")
	}

	c := NewChecker(newTestDB(t), liveSession, nil)
	c.WatchTable(sess, time.Minute)

	statusOf := func() Status {
		for _, s := range c.RunOnce(ctx) {
			if s.Name == "metrics_table" {
				return s
			}
		}
		t.Fatal("metrics_table status missing")
		return Status{}
	}

	if s := statusOf(); s.Healthy {
		t.Error("uninitialized table should be unhealthy")
	}
	if sess.State() != session.StateAcquired {
		t.Fatalf("state = %s, want acquired while init_table keeps failing", sess.State())
	}

	// Recovery initializes the table, then refreshes it.
	sim.FailInitTable(0)
	statusOf()
	if sess.State() != session.StateTableReady {
		t.Fatalf("state = %s, want table_ready after recovery", sess.State())
	}
	statusOf()
	if n := sim.Refreshes(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
	if s := statusOf(); !s.Healthy {
		t.Errorf("metrics_table = %+v, want healthy", s)
	}
}
