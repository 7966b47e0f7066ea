// Package healing provides a circuit breaker for device polling.
//
// A run of SMU failures (timeouts, rejected refreshes) trips the breaker;
// while it is open the poller skips the device entirely instead of queueing
// more calls behind the session lock.
//
//   - CLOSED    → failures reach threshold → OPEN
//   - OPEN      → after ResetTimeout → HALF_OPEN
//   - HALF_OPEN → HalfOpenMax successes → CLOSED; any failure → OPEN
package healing

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CBState represents the circuit breaker state.
type CBState int

const (
	CBClosed   CBState = iota // calls pass through
	CBOpen                    // calls rejected until ResetTimeout elapses
	CBHalfOpen                // probing
)

// String returns a human-readable circuit breaker state.
func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "CLOSED"
	case CBOpen:
		return "OPEN"
	case CBHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config configures a circuit breaker.
type Config struct {
	FailureThreshold int           // consecutive-ish failures to trip (default 5)
	ResetTimeout     time.Duration // time in OPEN before probing (default 30s)
	HalfOpenMax      int           // successful probes needed to close (default 2)
}

// DefaultConfig returns the poller defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      2,
	}
}

// ErrCircuitOpen is returned by Allow while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker implements the circuit breaker pattern. Safe for concurrent use.
type Breaker struct {
	mu         sync.Mutex
	name       string
	config     Config
	state      CBState
	failures   int
	successes  int // successes in HALF_OPEN
	trippedAt  time.Time
	totalTrips int
	onChange   func(from, to CBState)
	now        func() time.Time // injectable clock for testing
}

// New creates a breaker. Zero fields in cfg take defaults.
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = def.HalfOpenMax
	}
	return &Breaker{name: name, config: cfg, now: time.Now}
}

// OnStateChange registers fn to run on every transition. fn is called with
// the breaker's lock held and must not call back into it.
func (b *Breaker) OnStateChange(fn func(from, to CBState)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	if b.state == CBOpen {
		retry := b.config.ResetTimeout - b.now().Sub(b.trippedAt)
		return fmt.Errorf("%s: %w (retry in %s)", b.name, ErrCircuitOpen, retry.Round(time.Second))
	}
	return nil
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CBHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenMax {
			b.failures = 0
			b.successes = 0
			b.set(CBClosed)
		}
	case CBClosed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

// RecordFailure records a failed call. May trip the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CBClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.trip()
		}
	case CBHalfOpen:
		b.trip()
	}
}

// State returns the current state.
func (b *Breaker) State() CBState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Failures   int       `json:"failures"`
	TotalTrips int       `json:"total_trips"`
	TrippedAt  time.Time `json:"tripped_at,omitempty"`
}

// Snapshot returns the current state snapshot.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return Snapshot{
		Name:       b.name,
		State:      b.state.String(),
		Failures:   b.failures,
		TotalTrips: b.totalTrips,
		TrippedAt:  b.trippedAt,
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.set(CBClosed)
}

// advance moves OPEN to HALF_OPEN once the timeout has elapsed. Caller
// holds mu.
func (b *Breaker) advance() {
	if b.state == CBOpen && b.now().Sub(b.trippedAt) >= b.config.ResetTimeout {
		b.successes = 0
		b.set(CBHalfOpen)
	}
}

func (b *Breaker) trip() {
	b.trippedAt = b.now()
	b.totalTrips++
	b.set(CBOpen)
}

func (b *Breaker) set(s CBState) {
	if s == b.state {
		return
	}
	from := b.state
	b.state = s
	if b.onChange != nil {
		b.onChange(from, s)
	}
}
