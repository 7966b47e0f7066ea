package native

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
)

// ─── Simulated Driver (for testing without hardware) ────────────────────────

// SimConfig seeds a simulated APU.
type SimConfig struct {
	Family      domain.Family
	BiosVersion int
	Cores       int
	TableVer    uint32
	TableLen    int // float slots
	Latency     time.Duration

	// Limits in write units (mW, mA, °C, s), keyed by setter.
	Limits map[domain.Setter]uint32
	// Readings for read-only getters, in read units.
	Readings map[domain.Getter]float32
}

// DefaultSimConfig describes a Phoenix APU at stock 25 W limits.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Family:      domain.FamilyPhoenix,
		BiosVersion: 0x5,
		Cores:       8,
		TableVer:    0x4c0006,
		TableLen:    128,
		Limits: map[domain.Setter]uint32{
			domain.SetStapmLimit:       25000,
			domain.SetFastLimit:        30000,
			domain.SetSlowLimit:        25000,
			domain.SetTctlTemp:         95,
			domain.SetApuSkinTempLimit: 45,
			domain.SetVrmCurrent:       45000,
			domain.SetVrmSocCurrent:    13000,
			domain.SetVrmMaxCurrent:    65000,
			domain.SetVrmSocMaxCurrent: 15000,
		},
		Readings: map[domain.Getter]float32{
			domain.GetStapmValue:       12.5,
			domain.GetFastValue:        14.0,
			domain.GetSlowValue:        12.8,
			domain.GetApuSlowLimit:     25.0,
			domain.GetApuSlowValue:     11.9,
			domain.GetTctlTempValue:    62.0,
			domain.GetApuSkinTempValue: 38.5,
			domain.GetGfxClk:           800,
			domain.GetGfxTemp:          55,
			domain.GetGfxVolt:          0.85,
			domain.GetMemClk:           2800,
			domain.GetFclk:             1600,
			domain.GetSocPower:         3.2,
			domain.GetSocVolt:          0.95,
			domain.GetSocketPower:      15.5,
		},
	}
}

// limitGetters binds a limit getter to the setter that feeds it and the
// divisor from write units to read units.
var limitGetters = map[domain.Getter]struct {
	setter  domain.Setter
	divisor float32
}{
	domain.GetStapmLimit:       {domain.SetStapmLimit, 1000},
	domain.GetFastLimit:        {domain.SetFastLimit, 1000},
	domain.GetSlowLimit:        {domain.SetSlowLimit, 1000},
	domain.GetTctlTemp:         {domain.SetTctlTemp, 1},
	domain.GetApuSkinTempLimit: {domain.SetApuSkinTempLimit, 1},
	domain.GetVrmCurrent:       {domain.SetVrmCurrent, 1000},
	domain.GetVrmSocCurrent:    {domain.SetVrmSocCurrent, 1000},
	domain.GetVrmMaxCurrent:    {domain.SetVrmMaxCurrent, 1000},
	domain.GetVrmSocMaxCurrent: {domain.SetVrmSocMaxCurrent, 1000},
}

// SetCall records one setter invocation.
type SetCall struct {
	Setter domain.Setter
	Value  uint32
	Code   int
}

// Simulated implements Library for testing. Its sessions panic when a call
// is entered while another is still in flight, which is how tests verify
// that the access layer serializes native calls.
type Simulated struct {
	cfg SimConfig

	mu          sync.Mutex
	open        bool
	opens       int
	closes      int
	failInit    bool
	failTable   int
	failRefresh int
	failSet     map[domain.Setter]int
	limits      map[domain.Setter]uint32
	readings    map[domain.Getter]float32
	calls       []SetCall
	refreshes   int

	inFlight atomic.Int32
}

// NewSimulated creates a simulated driver.
func NewSimulated(cfg SimConfig) *Simulated {
	s := &Simulated{
		cfg:      cfg,
		failSet:  make(map[domain.Setter]int),
		limits:   make(map[domain.Setter]uint32, len(cfg.Limits)),
		readings: make(map[domain.Getter]float32, len(cfg.Readings)),
	}
	for k, v := range cfg.Limits {
		s.limits[k] = v
	}
	for k, v := range cfg.Readings {
		s.readings[k] = v
	}
	return s
}

func (s *Simulated) Name() string { return DriverSimulated }

// Open returns a session, or an acquire error if FailInit was set.
func (s *Simulated) Open() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInit {
		return nil, &domain.OpError{Op: "init", Err: domain.ErrAcquireFailed}
	}
	s.open = true
	s.opens++
	return &simSession{sim: s}, nil
}

// ─── Failure Injection ──────────────────────────────────────────────────────

// FailInit makes the next Open calls return a null token.
func (s *Simulated) FailInit(fail bool) {
	s.mu.Lock()
	s.failInit = fail
	s.mu.Unlock()
}

// FailInitTable makes init_table return code (0 clears).
func (s *Simulated) FailInitTable(code int) {
	s.mu.Lock()
	s.failTable = code
	s.mu.Unlock()
}

// FailRefresh makes refresh_table return code (0 clears).
func (s *Simulated) FailRefresh(code int) {
	s.mu.Lock()
	s.failRefresh = code
	s.mu.Unlock()
}

// FailSet makes the setter return code (0 clears).
func (s *Simulated) FailSet(fn domain.Setter, code int) {
	s.mu.Lock()
	if code == 0 {
		delete(s.failSet, fn)
	} else {
		s.failSet[fn] = code
	}
	s.mu.Unlock()
}

// SetReading changes a read-only getter's value.
func (s *Simulated) SetReading(fn domain.Getter, v float32) {
	s.mu.Lock()
	s.readings[fn] = v
	s.mu.Unlock()
}

// ─── Inspection ─────────────────────────────────────────────────────────────

// Limit returns the value recorded for a setter.
func (s *Simulated) Limit(fn domain.Setter) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.limits[fn]
	return v, ok
}

// Calls returns every setter invocation in order.
func (s *Simulated) Calls() []SetCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SetCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// IsOpen reports whether a session is live.
func (s *Simulated) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Cleanups returns how many times cleanup_ryzenadj ran.
func (s *Simulated) Cleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Refreshes returns how many table refreshes succeeded.
func (s *Simulated) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// ─── Session ────────────────────────────────────────────────────────────────

type simSession struct {
	sim    *Simulated
	closed bool
	table  bool
	ver    uint32
	values []float32
}

// enter guards every native entry point against reentrancy.
func (ss *simSession) enter() func() {
	if !ss.sim.inFlight.CompareAndSwap(0, 1) {
		panic("native: reentrant call into driver session")
	}
	if d := ss.sim.cfg.Latency; d > 0 {
		time.Sleep(d)
	}
	return func() { ss.sim.inFlight.Store(0) }
}

func (ss *simSession) Close() {
	defer ss.enter()()
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss.closed {
		panic("native: double cleanup of driver session")
	}
	ss.closed = true
	s.open = false
	s.closes++
}

func (ss *simSession) Family() int {
	defer ss.enter()()
	return int(ss.sim.cfg.Family)
}

func (ss *simSession) BiosInterfaceVersion() int {
	defer ss.enter()()
	return ss.sim.cfg.BiosVersion
}

func (ss *simSession) InitTable() int {
	defer ss.enter()()
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTable != 0 {
		return s.failTable
	}
	ss.table = true
	ss.ver = s.cfg.TableVer
	return 0
}

func (ss *simSession) RefreshTable() int {
	defer ss.enter()()
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ss.table {
		return int(domain.ErrMemoryAccess)
	}
	if s.failRefresh != 0 {
		return s.failRefresh
	}
	s.refreshes++
	values := make([]float32, s.cfg.TableLen)
	for i := range values {
		values[i] = float32(s.refreshes) + float32(i)*0.5
	}
	ss.values = values
	return 0
}

func (ss *simSession) TableVersion() uint32 {
	defer ss.enter()()
	return ss.ver
}

func (ss *simSession) TableSize() int {
	defer ss.enter()()
	return len(ss.values) * 4
}

func (ss *simSession) TableValues() []float32 {
	defer ss.enter()()
	out := make([]float32, len(ss.values))
	copy(out, ss.values)
	return out
}

func (ss *simSession) Set(fn domain.Setter, value uint32) int {
	defer ss.enter()()
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	code := 0
	switch {
	case ss.closed:
		code = int(domain.ErrFamilyUnsupported)
	case s.failSet[fn] != 0:
		code = s.failSet[fn]
	case fn == domain.SetNone:
		code = int(domain.ErrOperationUnsupported)
	default:
		s.limits[fn] = value
	}
	s.calls = append(s.calls, SetCall{Setter: fn, Value: value, Code: code})
	return code
}

func (ss *simSession) Get(fn domain.Getter) float32 {
	defer ss.enter()()
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if lg, ok := limitGetters[fn]; ok {
		return float32(s.limits[lg.setter]) / lg.divisor
	}
	v, ok := s.readings[fn]
	if !ok {
		return float32(math.NaN())
	}
	return v
}

func (ss *simSession) GetCore(fn domain.Getter, core uint32) float32 {
	defer ss.enter()()
	if int(core) >= ss.sim.cfg.Cores {
		// libryzenadj reads past the per-core block and returns garbage;
		// the simulation uses NaN for that.
		return float32(math.NaN())
	}
	c := float32(core)
	switch fn {
	case domain.GetCoreClk:
		return 3000 + 100*c
	case domain.GetCoreVolt:
		return 1.0 + 0.01*c
	case domain.GetCorePower:
		return 1.5 + 0.1*c
	case domain.GetCoreTemp:
		return 55 + c
	default:
		return 0
	}
}

// String is used in test failure output.
func (s SetCall) String() string {
	return fmt.Sprintf("%s(%d)=%d", s.Setter, s.Value, s.Code)
}
