// Package anomaly flags telemetry readings that jump far outside their own
// recent history.
//
// Each reading key keeps a running mean and variance (Welford's online
// algorithm). Once a key has enough samples, a value more than Sigma
// standard deviations from the mean is reported as a spike. Repeated
// spikes on the same key escalate to critical.
package anomaly

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// SigmaThreshold is the number of standard deviations for an outlier.
	SigmaThreshold = 3.0

	// MinSamples is how many readings a key needs before it is checked.
	MinSamples = 10

	// MaxConsecutive spikes on one key before escalation.
	MaxConsecutive = 3
)

// ─── Types ──────────────────────────────────────────────────────────────────

// Severity indicates how serious a spike is.
type Severity int

const (
	SevInfo Severity = iota
	SevWarning
	SevCritical
)

// String returns the severity label.
func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of one Observe call.
type Result struct {
	Key         string    `json:"key"`
	Value       float64   `json:"value"`
	IsSpike     bool      `json:"is_spike"`
	ZScore      float64   `json:"z_score,omitempty"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Series holds running statistics for one reading key.
type Series struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Mean        float64   `json:"mean"`
	M2          float64   `json:"m2"`
	Consecutive int       `json:"consecutive"`
	TotalSpikes int       `json:"total_spikes"`
	LastSpike   time.Time `json:"last_spike,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
}

// Stddev returns the sample standard deviation.
func (s *Series) Stddev() float64 {
	if s.Count < 2 {
		return 0
	}
	return math.Sqrt(s.M2 / float64(s.Count-1))
}

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the detector.
type Config struct {
	Sigma          float64 // standard deviations for an outlier (default 3.0)
	MinSamples     int     // readings before a key is checked (default 10)
	MaxConsecutive int     // spikes before escalation to critical (default 3)
}

// DefaultConfig returns the default detector settings.
func DefaultConfig() Config {
	return Config{
		Sigma:          SigmaThreshold,
		MinSamples:     MinSamples,
		MaxConsecutive: MaxConsecutive,
	}
}

// ─── Detector ───────────────────────────────────────────────────────────────

// Detector tracks per-key statistics. Safe for concurrent use.
type Detector struct {
	mu     sync.RWMutex
	config Config
	series map[string]*Series

	// Injectable clock for testing.
	now func() time.Time
}

// NewDetector creates a detector. Zero fields in cfg take defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Sigma <= 0 {
		cfg.Sigma = def.Sigma
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MaxConsecutive <= 0 {
		cfg.MaxConsecutive = def.MaxConsecutive
	}
	return &Detector{
		config: cfg,
		series: make(map[string]*Series),
		now:    time.Now,
	}
}

// Observe checks v against the key's history, then folds it in. Spikes are
// folded in too, so a lasting step change stops being reported once the
// statistics catch up.
func (d *Detector) Observe(key string, v float64) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	s := d.getOrCreate(key, now)
	res := Result{Key: key, Value: v, Timestamp: now}

	if s.Count >= d.config.MinSamples {
		if sd := s.Stddev(); sd > 0 {
			z := math.Abs(v-s.Mean) / sd
			if z > d.config.Sigma {
				res.IsSpike = true
				res.ZScore = z
				res.Severity = SevWarning
				res.Description = fmt.Sprintf("%s = %.3f is %.1fσ from mean %.3f (stddev=%.3f)",
					key, v, z, s.Mean, sd)
			}
		}
	}

	// Welford update
	s.Count++
	delta := v - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (v - s.Mean)
	s.LastUpdate = now

	if res.IsSpike {
		s.Consecutive++
		s.TotalSpikes++
		s.LastSpike = now
		if s.Consecutive >= d.config.MaxConsecutive {
			res.Severity = SevCritical
			res.Description += fmt.Sprintf(" [ESCALATED: %d consecutive spikes]", s.Consecutive)
		}
	} else {
		s.Consecutive = 0
	}
	return res
}

func (d *Detector) getOrCreate(key string, now time.Time) *Series {
	if s, ok := d.series[key]; ok {
		return s
	}
	s := &Series{Key: key, LastUpdate: now}
	d.series[key] = s
	return s
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Series returns a copy of the key's statistics, or false if unseen.
func (d *Detector) Series(key string) (Series, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.series[key]
	if !ok {
		return Series{}, false
	}
	return *s, true
}

// Reset forgets every key's history. Called after a profile change, when
// the old distribution no longer applies.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.series = make(map[string]*Series)
}

// TotalSpikes returns the number of spikes seen across all keys.
func (d *Detector) TotalSpikes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, s := range d.series {
		n += s.TotalSpikes
	}
	return n
}
