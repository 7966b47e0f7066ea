package session

import (
	"context"
	"sync"
)

// fifoLock is a mutex that grants ownership in arrival order.
// sync.Mutex does not promise ordering, and callers of the façade are
// serviced in submission order.
type fifoLock struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Lock blocks until the lock is held or ctx is done. Ownership is handed
// directly from Unlock to the oldest waiter.
func (l *fifoLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			l.mu.Unlock()
			return ctx.Err()
		}
	}
	l.mu.Unlock()
	// Ownership was handed over while ctx expired: pass it on.
	l.Unlock()
	return ctx.Err()
}

// Unlock releases the lock or hands it to the next waiter.
func (l *fifoLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		panic("session: unlock of unlocked fifoLock")
	}
	if len(l.waiters) == 0 {
		l.locked = false
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	close(next)
}
