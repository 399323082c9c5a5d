package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/StockForge/internal/domain"
)

// lockTable is a table of exclusive locks keyed by string. A lock is a
// one-slot channel: holding the lock means having sent into it.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (lt *lockTable) slot(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	ch, ok := lt.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.slots[key] = ch
	}
	return ch
}

// acquire blocks until key is free, ctx is done or timeout elapses.
// A timeout or a context deadline is reported as domain.ErrBusy.
func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := lt.slot(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-expired:
		return fmt.Errorf("lock %s: wait exceeded %s: %w", key, timeout, domain.ErrBusy)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("lock %s: %w", key, domain.ErrBusy)
		}
		return fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (lt *lockTable) release(key string) {
	<-lt.slot(key)
}
