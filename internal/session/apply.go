package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/metrics"
)

// ApplyReport lists the writes of a profile run, in issue order.
type ApplyReport struct {
	Order   []string      `json:"order"`
	Applied []string      `json:"applied"`
	Took    time.Duration `json:"took"`
}

// ApplyError reports the write that stopped a profile run. Writes listed
// in Applied reached the device and were not rolled back.
type ApplyError struct {
	Param   string
	Index   int // position in the write order, -1 when rejected before any write
	Applied []string
	Err     error
}

func (e *ApplyError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("apply rejected at %s: %v", e.Param, e.Err)
	}
	return fmt.Sprintf("apply stopped at %s (write %d, %d applied): %v", e.Param, e.Index+1, len(e.Applied), e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ApplyProfile writes settings in the fixed group order: power limits,
// time windows, temperature limits, current limits. Every name is checked
// before the first write. The run holds the device lock throughout and
// stops at the first failure.
func (m *Manager) ApplyProfile(ctx context.Context, settings map[string]uint32) (ApplyReport, error) {
	names := make([]string, 0, len(settings))
	for n := range settings {
		names = append(names, n)
	}
	order := domain.ApplyOrder(names)
	report := ApplyReport{Order: order}

	params := make([]domain.Parameter, len(order))
	for i, name := range order {
		p, ok := domain.LookupParameter(name)
		if !ok || !p.Writable() {
			return report, &ApplyError{
				Param: name,
				Index: -1,
				Err:   &domain.OpError{Op: "set", Param: name, Err: domain.ErrCapabilityMismatch},
			}
		}
		params[i] = p
	}

	start := time.Now()
	err := m.batch(ctx, "apply", func(set func(domain.Parameter, int64) error) error {
		for i, p := range params {
			if err := ctx.Err(); err != nil {
				return &ApplyError{Param: p.Name, Index: i, Applied: report.Applied, Err: err}
			}
			if err := set(p, int64(settings[p.Name])); err != nil {
				return &ApplyError{Param: p.Name, Index: i, Applied: report.Applied, Err: err}
			}
			report.Applied = append(report.Applied, p.Name)
		}
		return nil
	})
	report.Took = time.Since(start)

	if err != nil {
		var ae *ApplyError
		if !errors.As(err, &ae) {
			err = &ApplyError{Param: firstOf(order), Index: -1, Err: err}
		}
		metrics.ProfilesApplied.WithLabelValues("failed").Inc()
		m.log.Warn("profile apply stopped", "applied", len(report.Applied), "of", len(order), "err", err)
		return report, err
	}
	metrics.ProfilesApplied.WithLabelValues("ok").Inc()
	m.log.Info("profile applied", "writes", len(report.Applied), "took", report.Took.Round(time.Millisecond))
	return report, nil
}

func firstOf(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
