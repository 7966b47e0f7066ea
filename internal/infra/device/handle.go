// Package device owns the single native driver session: acquisition,
// release, family detection and the typed get/set dispatch.
//
// A Handle is not safe for concurrent use. The session façade serializes
// every call that reaches it.
package device

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/native"
)

// held tracks which libraries currently have a live session. A library
// value stands for one process-visible device, so it is the map key and
// must be comparable.
var held sync.Map // native.Library -> struct{}

// Handle is an acquired driver session.
type Handle struct {
	lib      native.Library
	ns       native.Session
	released atomic.Bool

	AcquiredAt time.Time
	Family     domain.Family
	cores      int
}

// Acquire opens the native session exactly once and detects the family.
// Fails with ErrSessionBusy if lib already has a live handle.
func Acquire(lib native.Library) (*Handle, error) {
	if lib == nil || !reflect.TypeOf(lib).Comparable() {
		return nil, &domain.OpError{Op: "init", Err: fmt.Errorf("%w: library %T is not comparable", domain.ErrAcquireFailed, lib)}
	}
	if _, busy := held.LoadOrStore(lib, struct{}{}); busy {
		return nil, &domain.OpError{Op: "init", Err: domain.ErrSessionBusy}
	}

	ns, err := lib.Open()
	if err != nil {
		held.Delete(lib)
		return nil, domain.Wrap("init", "", err)
	}
	if ns == nil {
		held.Delete(lib)
		return nil, &domain.OpError{Op: "init", Err: domain.ErrAcquireFailed}
	}

	h := &Handle{
		lib:        lib,
		ns:         ns,
		AcquiredAt: time.Now(),
		Family:     domain.FamilyWaitForLoad,
	}
	h.Family = h.DetectFamily()
	return h, nil
}

// Release runs native cleanup exactly once. Later calls report
// ErrAlreadyReleased without touching the driver.
func (h *Handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return &domain.OpError{Op: "cleanup", Err: domain.ErrAlreadyReleased}
	}
	h.ns.Close()
	h.ns = nil
	held.Delete(h.lib)
	return nil
}

// Released reports whether Release has run.
func (h *Handle) Released() bool { return h.released.Load() }

// SetCoreCount records the platform's core count for local index checks.
// Zero means unknown.
func (h *Handle) SetCoreCount(n int) { h.cores = n }

// DetectFamily asks the driver for the CPU family. Detection failure is a
// value (FamilyUnknown), not an error.
func (h *Handle) DetectFamily() domain.Family {
	if h.Released() {
		return domain.FamilyUnknown
	}
	return domain.FamilyFromNative(h.ns.Family())
}

// InterfaceVersion returns the SMU BIOS interface version.
func (h *Handle) InterfaceVersion() (int, error) {
	if err := h.live("bios_if_ver"); err != nil {
		return 0, err
	}
	v := h.ns.BiosInterfaceVersion()
	if v < 0 {
		return 0, domain.Wrap("bios_if_ver", "", domain.FromCode(v))
	}
	return v, nil
}

func (h *Handle) live(op string) error {
	if h.Released() {
		return &domain.OpError{Op: op, Err: domain.ErrSessionClosed}
	}
	return nil
}

// ─── Table passthroughs (used by the table cache) ──────────────────────────

// InitTable calls init_table.
func (h *Handle) InitTable() error {
	if err := h.live("init_table"); err != nil {
		return err
	}
	return domain.Wrap("init_table", "", domain.FromCode(h.ns.InitTable()))
}

// RefreshTable calls refresh_table.
func (h *Handle) RefreshTable() error {
	if err := h.live("refresh_table"); err != nil {
		return err
	}
	return domain.Wrap("refresh_table", "", domain.FromCode(h.ns.RefreshTable()))
}

// ReadTable returns the version, declared size and a copy of the values
// of the table as last refreshed by the driver.
func (h *Handle) ReadTable() (uint32, int, []float64, error) {
	if err := h.live("table_values"); err != nil {
		return 0, 0, nil, err
	}
	ver := h.ns.TableVersion()
	size := h.ns.TableSize()
	raw := h.ns.TableValues()
	values := make([]float64, len(raw))
	for i, v := range raw {
		values[i] = float64(v)
	}
	return ver, size, values, nil
}
