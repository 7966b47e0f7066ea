package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/native"
)

func TestApplyProfile_FixedOrder(t *testing.T) {
	m, sim := newTestManager(t, native.DefaultSimConfig())

	settings := map[string]uint32{
		"vrm_current": 40000,
		"tctl_temp":   90,
		"slow_time":   30,
		"slow_limit":  20000,
		"stapm_limit": 18000,
	}
	report, err := m.ApplyProfile(context.Background(), settings)
	if err != nil {
		t.Fatalf("ApplyProfile() error: %v", err)
	}

	want := []string{"stapm_limit", "slow_limit", "slow_time", "tctl_temp", "vrm_current"}
	if !reflect.DeepEqual(report.Applied, want) {
		t.Errorf("Applied = %v, want %v", report.Applied, want)
	}

	calls := sim.Calls()
	wantSetters := []domain.Setter{
		domain.SetStapmLimit, domain.SetSlowLimit, domain.SetSlowTime, domain.SetTctlTemp, domain.SetVrmCurrent,
	}
	if len(calls) != len(wantSetters) {
		t.Fatalf("calls = %v, want %d", calls, len(wantSetters))
	}
	for i, c := range calls {
		if c.Setter != wantSetters[i] {
			t.Errorf("call %d = %v, want %v", i, c, wantSetters[i])
		}
	}
}

func TestApplyProfile_StopsAtThirdWrite(t *testing.T) {
	m, sim := newTestManager(t, native.DefaultSimConfig())
	sim.FailSet(domain.SetSlowLimit, int(domain.ErrOperationRejected))

	settings := map[string]uint32{
		"stapm_limit": 20000,
		"fast_limit":  25000,
		"slow_limit":  22000,
		"tctl_temp":   90,
		"vrm_current": 40000,
	}
	report, err := m.ApplyProfile(context.Background(), settings)

	var ae *ApplyError
	if !errors.As(err, &ae) {
		t.Fatalf("ApplyProfile() error = %v, want *ApplyError", err)
	}
	if ae.Param != "slow_limit" || ae.Index != 2 {
		t.Errorf("ApplyError = {%s %d}, want {slow_limit 2}", ae.Param, ae.Index)
	}
	if !errors.Is(err, domain.ErrOperationRejected) {
		t.Errorf("error kind = %v, want ErrOperationRejected", err)
	}
	if !reflect.DeepEqual(report.Applied, []string{"stapm_limit", "fast_limit"}) {
		t.Errorf("Applied = %v, want [stapm_limit fast_limit]", report.Applied)
	}

	// Earlier writes stay, later ones never reach the driver.
	if v, _ := sim.Limit(domain.SetStapmLimit); v != 20000 {
		t.Errorf("stapm limit = %d, want 20000", v)
	}
	if v, _ := sim.Limit(domain.SetTctlTemp); v != 95 {
		t.Errorf("tctl limit = %d, want untouched 95", v)
	}
	if n := len(sim.Calls()); n != 3 {
		t.Errorf("driver saw %d set calls, want 3", n)
	}
}

func TestApplyProfile_RejectsBeforeWriting(t *testing.T) {
	m, sim := newTestManager(t, native.DefaultSimConfig())

	for _, bad := range []string{"turbo_boost", "socket_power"} {
		_, err := m.ApplyProfile(context.Background(), map[string]uint32{
			"stapm_limit": 15000,
			bad:           1,
		})
		var ae *ApplyError
		if !errors.As(err, &ae) || ae.Index != -1 || ae.Param != bad {
			t.Errorf("%s: error = %v, want pre-write ApplyError", bad, err)
		}
		if !errors.Is(err, domain.ErrCapabilityMismatch) {
			t.Errorf("%s: error kind = %v, want ErrCapabilityMismatch", bad, err)
		}
	}
	if n := len(sim.Calls()); n != 0 {
		t.Errorf("driver saw %d set calls, want 0", n)
	}
}

func TestApplyProfile_CancelledContext(t *testing.T) {
	m, sim := newTestManager(t, native.DefaultSimConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ApplyProfile(ctx, map[string]uint32{"stapm_limit": 15000})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ApplyProfile() error = %v, want Canceled", err)
	}
	if n := len(sim.Calls()); n != 0 {
		t.Errorf("driver saw %d set calls, want 0", n)
	}
}
