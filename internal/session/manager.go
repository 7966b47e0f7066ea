// Package session is the façade consumers use to reach the power
// management driver. A Manager composes the device handle, the parameter
// registry and the table cache, and serializes every native call through
// a single FIFO lock: at most one call is in flight per session, reads
// included, and callers are serviced in the order they arrived.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/device"
	"github.com/apuctl/apuctl/internal/infra/metrics"
	"github.com/apuctl/apuctl/internal/infra/native"
	"github.com/apuctl/apuctl/internal/infra/table"
)

// State is the façade lifecycle state. Closed is terminal.
type State int32

const (
	StateUninitialized State = iota
	StateAcquired
	StateTableReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAcquired:
		return "acquired"
	case StateTableReady:
		return "table_ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l.With("component", "session") }
}

// WithCoreCount enables local bounds checks on per-core reads.
func WithCoreCount(n int) Option {
	return func(m *Manager) { m.cores = n }
}

// WithClock sets the clock used to stamp table snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.table = table.NewWithClock(now) }
}

// Manager is a single device session shared by any number of goroutines.
type Manager struct {
	lib   native.Library
	log   *slog.Logger
	cores int

	lock   fifoLock // serializes native calls
	state  atomic.Int32
	handle *device.Handle
	table  *table.Cache

	infoMu     sync.RWMutex
	family     domain.Family
	acquiredAt time.Time
}

// New creates a Manager in StateUninitialized. Call Open before use.
func New(lib native.Library, opts ...Option) *Manager {
	m := &Manager{
		lib:    lib,
		log:    slog.Default().With("component", "session"),
		table:  table.New(),
		family: domain.FamilyWaitForLoad,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithSession opens a session, runs fn, and closes the session on every
// exit path, including a panic in fn.
func WithSession(ctx context.Context, lib native.Library, fn func(*Manager) error, opts ...Option) (err error) {
	m := New(lib, opts...)
	if err := m.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(m)
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	metrics.SessionState.Set(float64(s))
}

// Driver returns the native library name.
func (m *Manager) Driver() string { return m.lib.Name() }

// Family returns the family detected at Open, FamilyWaitForLoad before.
func (m *Manager) Family() domain.Family {
	m.infoMu.RLock()
	defer m.infoMu.RUnlock()
	return m.family
}

// AcquiredAt returns when the native session was acquired.
func (m *Manager) AcquiredAt() time.Time {
	m.infoMu.RLock()
	defer m.infoMu.RUnlock()
	return m.acquiredAt
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Open acquires the native session and detects the CPU family.
func (m *Manager) Open(ctx context.Context) error {
	if err := m.lock.Lock(ctx); err != nil {
		return domain.Wrap("init", "", err)
	}
	defer m.lock.Unlock()

	switch m.State() {
	case StateClosed:
		return &domain.OpError{Op: "init", Err: domain.ErrSessionClosed}
	case StateAcquired, StateTableReady:
		return &domain.OpError{Op: "init", Err: domain.ErrSessionBusy}
	case StateUninitialized:
	}

	start := time.Now()
	h, err := device.Acquire(m.lib)
	m.observe("init", start, err)
	if err != nil {
		m.log.Error("acquire failed", "driver", m.lib.Name(), "err", err)
		return err
	}
	h.SetCoreCount(m.cores)
	m.handle = h

	m.infoMu.Lock()
	m.family = h.Family
	m.acquiredAt = h.AcquiredAt
	m.infoMu.Unlock()

	metrics.CPUFamily.Set(float64(h.Family))
	m.setState(StateAcquired)
	m.log.Info("session acquired", "driver", m.lib.Name(), "family", h.Family.String())
	if !h.Family.Supported() {
		m.log.Warn("cpu family not supported", "family", h.Family.String())
	}
	return nil
}

// InitTable initializes the driver's metrics table. Required once before
// Refresh and any table read.
func (m *Manager) InitTable(ctx context.Context) error {
	return m.do(ctx, "init_table", "", func(h *device.Handle) error {
		if err := m.table.Init(h); err != nil {
			return err
		}
		m.setState(StateTableReady)
		return nil
	})
}

// Close releases the native session. Later calls report
// ErrAlreadyReleased.
func (m *Manager) Close() error {
	_ = m.lock.Lock(context.Background())
	defer m.lock.Unlock()

	switch m.State() {
	case StateClosed:
		return &domain.OpError{Op: "cleanup", Err: domain.ErrAlreadyReleased}
	case StateUninitialized:
		m.setState(StateClosed)
		return nil
	case StateAcquired, StateTableReady:
	}

	start := time.Now()
	err := m.handle.Release()
	m.observe("cleanup", start, err)
	m.setState(StateClosed)
	m.log.Info("session released", "held_for", time.Since(m.AcquiredAt()).Round(time.Millisecond))
	return err
}

// ─── Parameters ─────────────────────────────────────────────────────────────

// Get reads a parameter in its read unit.
func (m *Manager) Get(ctx context.Context, p domain.Parameter) (float64, error) {
	var v float64
	err := m.do(ctx, "get", p.Name, func(h *device.Handle) error {
		var err error
		v, err = h.Get(p)
		return err
	})
	return v, err
}

// GetCore reads a per-core parameter for a zero-based core index.
func (m *Manager) GetCore(ctx context.Context, p domain.Parameter, core int) (float64, error) {
	var v float64
	err := m.do(ctx, "get", p.Name, func(h *device.Handle) error {
		var err error
		v, err = h.GetCore(p, core)
		return err
	})
	return v, err
}

// Set writes a parameter in its write unit. Local validation failures
// never reach the driver.
func (m *Manager) Set(ctx context.Context, p domain.Parameter, value int64) error {
	if err := device.ValidateSet(p, value); err != nil {
		if m.State() == StateClosed {
			return &domain.OpError{Op: "set", Param: p.Name, Err: domain.ErrSessionClosed}
		}
		return err
	}
	err := m.do(ctx, "set", p.Name, func(h *device.Handle) error {
		return h.Set(p, value)
	})
	if err == nil {
		m.log.Info("parameter set", "param", p.Name, "value", value, "unit", string(p.WriteUnit))
	}
	return err
}

// InterfaceVersion returns the SMU BIOS interface version.
func (m *Manager) InterfaceVersion(ctx context.Context) (int, error) {
	var v int
	err := m.do(ctx, "bios_if_ver", "", func(h *device.Handle) error {
		var err error
		v, err = h.InterfaceVersion()
		return err
	})
	return v, err
}

// ─── Table ──────────────────────────────────────────────────────────────────

// Refresh replaces the cached table snapshot. A failed refresh leaves the
// previous snapshot in place.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.do(ctx, "refresh_table", "", func(h *device.Handle) error {
		if m.State() != StateTableReady {
			return &domain.OpError{Op: "refresh_table", Err: domain.ErrTableNotReady}
		}
		if err := m.table.Refresh(h); err != nil {
			return err
		}
		metrics.TableRefreshes.Inc()
		if v, err := m.table.Version(); err == nil {
			metrics.TableVersion.Set(float64(v))
		}
		return nil
	})
}

// TableVersion returns the version of the last refreshed snapshot.
func (m *Manager) TableVersion() (uint32, error) {
	if err := m.tableReadable("table_version"); err != nil {
		return 0, err
	}
	return m.table.Version()
}

// TableSize returns the declared size of the last refreshed snapshot.
func (m *Manager) TableSize() (int, error) {
	if err := m.tableReadable("table_size"); err != nil {
		return 0, err
	}
	return m.table.Size()
}

// TableValues returns a copy of the last refreshed snapshot's values.
func (m *Manager) TableValues() ([]float64, error) {
	if err := m.tableReadable("table_values"); err != nil {
		return nil, err
	}
	return m.table.Values()
}

// TableSnapshot returns a copy of the last refreshed snapshot.
func (m *Manager) TableSnapshot() (domain.TableSnapshot, error) {
	if err := m.tableReadable("table_values"); err != nil {
		return domain.TableSnapshot{}, err
	}
	return m.table.Snapshot()
}

// TableReady reports whether init_table has succeeded on the live session.
func (m *Manager) TableReady() bool { return m.State() == StateTableReady }

// TableAge returns the age of the cached snapshot.
func (m *Manager) TableAge() (time.Duration, bool) { return m.table.Age() }

func (m *Manager) tableReadable(op string) error {
	switch m.State() {
	case StateUninitialized, StateClosed:
		return &domain.OpError{Op: op, Err: domain.ErrSessionClosed}
	case StateAcquired:
		return &domain.OpError{Op: op, Err: domain.ErrTableNotReady}
	case StateTableReady:
	}
	return nil
}

// ─── Serialization ──────────────────────────────────────────────────────────

// do runs fn with the device lock held, after checking that a live
// session exists.
func (m *Manager) do(ctx context.Context, op, param string, fn func(h *device.Handle) error) error {
	wait := time.Now()
	if err := m.lock.Lock(ctx); err != nil {
		return domain.Wrap(op, param, err)
	}
	defer m.lock.Unlock()
	metrics.LockWait.Observe(time.Since(wait).Seconds())

	switch m.State() {
	case StateUninitialized, StateClosed:
		err := &domain.OpError{Op: op, Param: param, Err: domain.ErrSessionClosed}
		m.observe(op, time.Now(), err)
		return err
	case StateAcquired, StateTableReady:
	}

	start := time.Now()
	err := fn(m.handle)
	m.observe(op, start, err)
	return err
}

// batch holds the device lock across a sequence of writes so no other
// caller's call lands between them.
func (m *Manager) batch(ctx context.Context, op string, fn func(set func(domain.Parameter, int64) error) error) error {
	return m.do(ctx, op, "", func(h *device.Handle) error {
		return fn(func(p domain.Parameter, value int64) error {
			start := time.Now()
			err := h.Set(p, value)
			m.observe("set", start, err)
			return err
		})
	})
}

func (m *Manager) observe(op string, start time.Time, err error) {
	metrics.NativeCallLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	kind := "other"
	if k, ok := domain.KindOf(err); ok {
		kind = k.Kind()
	}
	metrics.NativeCallErrors.WithLabelValues(op, kind).Inc()
	m.log.Debug("call failed", "op", op, "param", domain.ParamOf(err), "kind", kind, "err", err)
}
