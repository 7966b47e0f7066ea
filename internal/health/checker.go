// Package health runs periodic health checks over the state store, the
// device session and the telemetry poller.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/metrics"
	"github.com/apuctl/apuctl/internal/session"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is satisfied by *sqlite.DB.
type Pinger interface {
	Ping() error
}

// SessionProbe is satisfied by *session.Manager.
type SessionProbe interface {
	State() session.State
	Family() domain.Family
}

// SampleProbe is satisfied by *monitor.Poller.
type SampleProbe interface {
	Latest() (domain.Sample, bool)
	Interval() time.Duration
}

// TableProbe is satisfied by *session.Manager.
type TableProbe interface {
	State() session.State
	TableAge() (time.Duration, bool)
	InitTable(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker for the daemon's components. A nil
// monitor skips the telemetry check.
func NewChecker(db Pinger, sess SessionProbe, mon SampleProbe) *Checker {
	c := &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "device_session",
				CheckFn: func(ctx context.Context) error {
					return checkSession(sess)
				},
			},
		},
	}
	if mon != nil {
		c.checks = append(c.checks, Check{
			Name: "telemetry",
			CheckFn: func(ctx context.Context) error {
				return checkTelemetry(mon, time.Now())
			},
		})
	}
	return c
}

// WatchTable adds a metrics table check. A table that failed to
// initialize is retried, and one older than maxAge is refreshed. Call
// before Run.
func (c *Checker) WatchTable(t TableProbe, maxAge time.Duration) {
	c.checks = append(c.checks, Check{
		Name: "metrics_table",
		CheckFn: func(ctx context.Context) error {
			return checkTable(t, maxAge)
		},
		RecoverFn: func(ctx context.Context) error {
			return recoverTable(ctx, t)
		},
	})
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

// RunOnce runs every check now and returns the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.runAll(ctx)
	return c.Statuses()
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkSession(sess SessionProbe) error {
	switch st := sess.State(); st {
	case session.StateAcquired, session.StateTableReady:
	default:
		return fmt.Errorf("session %s", st)
	}
	if f := sess.Family(); !f.Supported() {
		return fmt.Errorf("cpu family %s is not supported", f)
	}
	return nil
}

var errNoSample = errors.New("no telemetry sample yet")

// checkTelemetry fails when the last sample is older than three poll
// intervals, or when the last poll could not reach the device.
func checkTelemetry(mon SampleProbe, now time.Time) error {
	s, ok := mon.Latest()
	if !ok {
		return errNoSample
	}
	if age, limit := now.Sub(s.TakenAt), 3*mon.Interval(); age > limit {
		return fmt.Errorf("last sample is %s old (limit %s)", age.Round(time.Second), limit)
	}
	if msg, failed := s.Errors["device"]; failed {
		return fmt.Errorf("device: %s", msg)
	}
	if msg, failed := s.Errors["table"]; failed {
		return fmt.Errorf("table refresh: %s", msg)
	}
	return nil
}

var (
	errTableNotInitialized = errors.New("metrics table not initialized")
	errNoTableSnapshot     = errors.New("metrics table never refreshed")
)

// checkTable only judges live sessions; checkSession reports the rest.
func checkTable(t TableProbe, maxAge time.Duration) error {
	switch t.State() {
	case session.StateAcquired:
		return errTableNotInitialized
	case session.StateTableReady:
	default:
		return nil
	}
	age, ok := t.TableAge()
	if !ok {
		return errNoTableSnapshot
	}
	if age > maxAge {
		return fmt.Errorf("metrics table is %s old (limit %s)", age.Round(time.Second), maxAge)
	}
	return nil
}

func recoverTable(ctx context.Context, t TableProbe) error {
	if t.State() == session.StateAcquired {
		return t.InitTable(ctx)
	}
	return t.Refresh(ctx)
}
