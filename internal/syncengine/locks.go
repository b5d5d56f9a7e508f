package syncengine

import (
	"context"
	"sync"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// ownerLocks holds one single-slot semaphore per owner. Acquire honors
// context cancellation, which a sync.Mutex cannot.
type ownerLocks struct {
	mu    sync.Mutex
	slots map[models.Owner]chan struct{}
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{slots: map[models.Owner]chan struct{}{}}
}

func (l *ownerLocks) slot(owner models.Owner) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[owner]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[owner] = ch
	}
	return ch
}

func (l *ownerLocks) acquire(ctx context.Context, owner models.Owner) (release func(), err error) {
	ch := l.slot(owner)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryAcquire never waits.
func (l *ownerLocks) tryAcquire(owner models.Owner) (release func(), ok bool) {
	ch := l.slot(owner)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}
