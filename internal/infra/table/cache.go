// Package table caches the driver's power metrics table.
//
// The device never pushes updates: the table must be initialized once and
// refreshed explicitly before each batch of reads. Readers never trigger a
// refresh, so callers decide polling cadence and cost.
package table

import (
	"sync"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
)

// Source is the subset of device.Handle the cache needs.
type Source interface {
	InitTable() error
	RefreshTable() error
	ReadTable() (version uint32, size int, values []float64, err error)
}

// Cache holds the last successfully refreshed snapshot.
type Cache struct {
	mu          sync.RWMutex
	initialized bool
	snap        *domain.TableSnapshot
	now         func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{now: time.Now}
}

// NewWithClock creates an empty cache that stamps snapshots with now.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{now: now}
}

// Init runs init_table. Required once before Refresh.
func (c *Cache) Init(src Source) error {
	if err := src.InitTable(); err != nil {
		return err
	}
	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// Refresh asks the driver to refresh and replaces the snapshot wholesale.
// On failure the previous snapshot stays as it was.
func (c *Cache) Refresh(src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return &domain.OpError{Op: "refresh_table", Err: domain.ErrTableNotReady}
	}
	if err := src.RefreshTable(); err != nil {
		return err
	}
	ver, size, values, err := src.ReadTable()
	if err != nil {
		return err
	}
	c.snap = &domain.TableSnapshot{
		Version:     ver,
		Size:        size,
		Values:      values,
		RefreshedAt: c.now(),
	}
	return nil
}

// Initialized reports whether Init succeeded.
func (c *Cache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Ready reports whether a snapshot is available.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap != nil
}

// Snapshot returns a copy of the last snapshot, or ErrTableNotReady if no
// refresh has succeeded yet.
func (c *Cache) Snapshot() (domain.TableSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return domain.TableSnapshot{}, &domain.OpError{Op: "table_values", Err: domain.ErrTableNotReady}
	}
	out := *c.snap
	out.Values = append([]float64(nil), c.snap.Values...)
	return out, nil
}

// Version returns the table version of the last snapshot.
func (c *Cache) Version() (uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0, &domain.OpError{Op: "table_version", Err: domain.ErrTableNotReady}
	}
	return c.snap.Version, nil
}

// Size returns the declared table size of the last snapshot.
func (c *Cache) Size() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0, &domain.OpError{Op: "table_size", Err: domain.ErrTableNotReady}
	}
	return c.snap.Size, nil
}

// Values returns a copy of the last snapshot's values.
func (c *Cache) Values() ([]float64, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Values, nil
}

// Age returns how long ago the snapshot was taken, or false if none.
func (c *Cache) Age() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0, false
	}
	return c.now().Sub(c.snap.RefreshedAt), true
}
