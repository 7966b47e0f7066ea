package domain

import "time"

// TableSnapshot is one copy of the driver's power metrics table.
// It is built once per refresh and never mutated afterwards.
type TableSnapshot struct {
	Version     uint32    `json:"version"`
	Size        int       `json:"size"` // bytes, as declared by the driver
	Values      []float64 `json:"values"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Len returns the number of float slots in the snapshot.
func (s TableSnapshot) Len() int { return len(s.Values) }

// Sample is one telemetry poll: parameter readings taken right after a
// table refresh.
type Sample struct {
	TakenAt  time.Time          `json:"taken_at"`
	Family   string             `json:"family"`
	Readings map[string]float64 `json:"readings"`
	Errors   map[string]string  `json:"errors,omitempty"`
	Spikes   []string           `json:"spikes,omitempty"` // keys far outside their recent history
}
