package healing

import (
	"errors"
	"testing"
	"time"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("smu", Config{
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
		HalfOpenMax:      2,
	})
	b.now = clock.now
	return b, clock
}

func trip(b *Breaker) {
	for i := 0; i < b.config.FailureThreshold; i++ {
		b.RecordFailure()
	}
}

// ─── CBState.String ─────────────────────────────────────────────────────────

func TestCBState_String(t *testing.T) {
	tests := []struct {
		state CBState
		want  string
	}{
		{CBClosed, "CLOSED"},
		{CBOpen, "OPEN"},
		{CBHalfOpen, "HALF_OPEN"},
		{CBState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CBState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// ─── State Transitions ──────────────────────────────────────────────────────

func TestNew_Defaults(t *testing.T) {
	b := New("smu", Config{})
	if b.config != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", b.config)
	}
	if b.State() != CBClosed {
		t.Errorf("initial state = %s, want CLOSED", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() in CLOSED state should succeed, got %v", err)
	}
}

func TestBreaker_TripsAndBlocks(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != CBClosed {
		t.Fatalf("state after 2 failures = %s, want CLOSED", b.State())
	}
	b.RecordFailure()
	if b.State() != CBOpen {
		t.Fatalf("state after 3 failures = %s, want OPEN", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b, clock := newTestBreaker(t)
	trip(b)

	clock.advance(999 * time.Millisecond)
	if b.State() != CBOpen {
		t.Errorf("state before timeout = %s, want OPEN", b.State())
	}
	clock.advance(time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after timeout = %v, want nil", err)
	}
	if b.State() != CBHalfOpen {
		t.Errorf("state after timeout = %s, want HALF_OPEN", b.State())
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(t)
	trip(b)
	clock.advance(time.Second)
	b.Allow()

	b.RecordSuccess()
	if b.State() != CBHalfOpen {
		t.Errorf("state after 1 probe = %s, want HALF_OPEN", b.State())
	}
	b.RecordSuccess()
	if b.State() != CBClosed {
		t.Errorf("state after 2 probes = %s, want CLOSED", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t)
	trip(b)
	clock.advance(time.Second)
	b.Allow()

	b.RecordFailure()
	if b.State() != CBOpen {
		t.Errorf("state = %s, want OPEN", b.State())
	}
	if snap := b.Snapshot(); snap.TotalTrips != 2 {
		t.Errorf("TotalTrips = %d, want 2", snap.TotalTrips)
	}
}

func TestBreaker_SuccessDecaysFailures(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != CBClosed {
		t.Errorf("state = %s, want CLOSED (one failure decayed)", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	b, clock := newTestBreaker(t)
	var seen []string
	b.OnStateChange(func(from, to CBState) {
		seen = append(seen, from.String()+"->"+to.String())
	})

	trip(b)
	clock.advance(time.Second)
	b.Allow()
	b.RecordSuccess()
	b.RecordSuccess()

	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(t)
	trip(b)
	b.Reset()
	if b.State() != CBClosed {
		t.Errorf("state after Reset = %s, want CLOSED", b.State())
	}
	snap := b.Snapshot()
	if snap.Name != "smu" || snap.Failures != 0 || snap.TotalTrips != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
