package repository

import "sync"

// keyLock serializes writers of the same key while letting different keys
// proceed in parallel. Entries are dropped once nobody holds or waits on them.
type keyLock[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock[K comparable]() *keyLock[K] {
	return &keyLock[K]{entries: make(map[K]*keyEntry)}
}

func (l *keyLock[K]) Lock(key K) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
