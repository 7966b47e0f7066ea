// Package monitor polls the device on a fixed cadence: one table refresh
// followed by a read of each configured parameter. The latest sample is
// kept for the API and exported as Prometheus gauges.
//
// Readings far outside their own history are flagged as spikes. A run of
// SMU failures opens a circuit breaker and polls skip the device until it
// half-opens again.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/infra/anomaly"
	"github.com/apuctl/apuctl/internal/infra/healing"
	"github.com/apuctl/apuctl/internal/infra/metrics"
)

// Source is the subset of the session façade the poller needs.
type Source interface {
	Refresh(ctx context.Context) error
	Get(ctx context.Context, p domain.Parameter) (float64, error)
	GetCore(ctx context.Context, p domain.Parameter, core int) (float64, error)
	Family() domain.Family
}

// tableState is implemented by sources that can report whether the metrics
// table has been initialized. Sources without it are assumed ready.
type tableState interface {
	TableReady() bool
}

// Config controls poller behavior.
type Config struct {
	Interval     time.Duration
	Params       []string
	Cores        int     // per-core params are read for cores [0, Cores)
	RefreshTable bool    // refresh the metrics table before each poll, once it is initialized
	ThermalWarn  float64 // °C on tctl_temp_value that logs a warning; 0 disables

	SpikeSigma float64 // z-score that flags a reading as a spike; 0 disables

	BreakerThreshold int           // device failures that open the breaker
	BreakerReset     time.Duration // how long polls skip the device once open
}

// DefaultConfig samples the headline power and temperature readings every
// two seconds.
func DefaultConfig() Config {
	return Config{
		Interval:     2 * time.Second,
		Params:       []string{"socket_power", "stapm_value", "fast_value", "slow_value", "tctl_temp_value"},
		RefreshTable: true,
		ThermalWarn:  90,
		SpikeSigma:   anomaly.SigmaThreshold,

		BreakerThreshold: healing.DefaultConfig().FailureThreshold,
		BreakerReset:     healing.DefaultConfig().ResetTimeout,
	}
}

// Poller periodically samples the device.
type Poller struct {
	src    Source
	cfg    Config
	params []domain.Parameter
	log    *slog.Logger

	spikes  *anomaly.Detector // nil when disabled
	breaker *healing.Breaker

	mu     sync.RWMutex
	latest *domain.Sample
	hot    bool
}

// NewPoller validates the parameter list. Every name must be readable.
func NewPoller(src Source, cfg Config, log *slog.Logger) (*Poller, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if log == nil {
		log = slog.Default()
	}
	params := make([]domain.Parameter, 0, len(cfg.Params))
	for _, name := range cfg.Params {
		p, ok := domain.LookupParameter(name)
		if !ok {
			return nil, fmt.Errorf("monitor: unknown parameter %q", name)
		}
		if !p.Readable() {
			return nil, fmt.Errorf("monitor: parameter %q is not readable", name)
		}
		params = append(params, p)
	}
	p := &Poller{
		src:    src,
		cfg:    cfg,
		params: params,
		log:    log.With("component", "monitor"),
		breaker: healing.New("smu", healing.Config{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerReset,
		}),
	}
	if cfg.SpikeSigma > 0 {
		p.spikes = anomaly.NewDetector(anomaly.Config{Sigma: cfg.SpikeSigma})
	}
	p.breaker.OnStateChange(func(from, to healing.CBState) {
		metrics.PollerBreakerState.Set(float64(to))
		if to == healing.CBOpen {
			p.log.Warn("device polling suspended", "from", from.String())
		} else {
			p.log.Info("device polling state", "from", from.String(), "to", to.String())
		}
	})
	return p, nil
}

// Breaker returns a snapshot of the device circuit breaker.
func (p *Poller) Breaker() healing.Snapshot { return p.breaker.Snapshot() }

// ResetBaseline forgets spike history, e.g. after new limits are applied.
func (p *Poller) ResetBaseline() {
	if p.spikes != nil {
		p.spikes.Reset()
	}
}

// Interval returns the effective poll interval.
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Latest returns the most recent sample, or false before the first poll.
func (p *Poller) Latest() (domain.Sample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return domain.Sample{}, false
	}
	return *p.latest, true
}

// Run polls immediately and then once per interval until ctx is done.
// Call in a goroutine.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll takes one sample. Per-parameter failures are recorded in the
// sample, not returned.
func (p *Poller) Poll(ctx context.Context) domain.Sample {
	s := domain.Sample{
		TakenAt:  time.Now(),
		Family:   p.src.Family().String(),
		Readings: make(map[string]float64, len(p.params)),
	}
	fail := func(key string, err error) {
		if s.Errors == nil {
			s.Errors = make(map[string]string)
		}
		s.Errors[key] = err.Error()
	}

	if err := p.breaker.Allow(); err != nil {
		fail("device", err)
		p.store(&s)
		return s
	}

	deviceFailed := false
	if p.cfg.RefreshTable && p.tableReady() {
		if err := p.src.Refresh(ctx); err != nil {
			fail("table", err)
			deviceFailed = transient(err)
		}
	}

	for _, param := range p.params {
		if param.PerCore {
			for c := 0; c < p.cfg.Cores; c++ {
				key := fmt.Sprintf("%s/%d", param.Name, c)
				v, err := p.src.GetCore(ctx, param, c)
				deviceFailed = transient(err) || deviceFailed
				p.record(&s, key, param, v, err, fail)
			}
			continue
		}
		v, err := p.src.Get(ctx, param)
		deviceFailed = transient(err) || deviceFailed
		p.record(&s, param.Name, param, v, err, fail)
	}

	if deviceFailed {
		p.breaker.RecordFailure()
	} else {
		p.breaker.RecordSuccess()
	}

	p.checkThermal(s)
	p.store(&s)
	return s
}

// tableReady is false while the source's table is uninitialized, e.g.
// after init_table failed at startup. Refreshing then can only fail.
func (p *Poller) tableReady() bool {
	ts, ok := p.src.(tableState)
	return !ok || ts.TableReady()
}

func (p *Poller) store(s *domain.Sample) {
	p.mu.Lock()
	p.latest = s
	p.mu.Unlock()
}

// transient reports whether err is an SMU failure worth backing off for.
// Unsupported getters fail on every poll and do not count.
func transient(err error) bool {
	if err == nil {
		return false
	}
	k, ok := domain.KindOf(err)
	if !ok {
		return !errors.Is(err, context.Canceled)
	}
	switch k {
	case domain.ErrCommTimeout, domain.ErrMemoryAccess, domain.ErrOperationRejected:
		return true
	}
	return false
}

func (p *Poller) record(s *domain.Sample, key string, param domain.Parameter, v float64, err error, fail func(string, error)) {
	if err != nil {
		fail(key, err)
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		fail(key, fmt.Errorf("non-finite reading"))
		return
	}
	s.Readings[key] = v
	metrics.Reading.WithLabelValues(key, string(param.ReadUnit)).Set(v)

	if p.spikes == nil {
		return
	}
	if r := p.spikes.Observe(key, v); r.IsSpike {
		s.Spikes = append(s.Spikes, key)
		metrics.TelemetrySpikes.WithLabelValues(key).Inc()
		p.log.Warn("reading spike", "key", key, "value", v, "z", r.ZScore, "severity", r.Severity.String())
	}
}

// checkThermal logs once when tctl crosses the warning threshold and once
// when it drops back.
func (p *Poller) checkThermal(s domain.Sample) {
	if p.cfg.ThermalWarn <= 0 {
		return
	}
	temp, ok := s.Readings["tctl_temp_value"]
	if !ok {
		return
	}
	hot := temp >= p.cfg.ThermalWarn
	p.mu.Lock()
	changed := hot != p.hot
	p.hot = hot
	p.mu.Unlock()
	if !changed {
		return
	}
	if hot {
		p.log.Warn("tctl above threshold", "temp_c", temp, "threshold_c", p.cfg.ThermalWarn)
	} else {
		p.log.Info("tctl back below threshold", "temp_c", temp)
	}
}
