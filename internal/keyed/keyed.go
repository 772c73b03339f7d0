// Package keyed provides a mutex per string key so operations touching the
// same entity are serialized while unrelated entities proceed in parallel.
package keyed

import "sync"

// Mutex hands out one lock per key. Locks are created on first use and kept
// for the life of the process; the key space here (entity ids) is small and
// bounded by actual traffic.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutex returns an empty keyed mutex.
func NewMutex() *Mutex {
	return &Mutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for key, creating it if needed.
func (m *Mutex) Lock(key string) {
	m.get(key).Lock()
}

// Unlock releases the lock for key.
func (m *Mutex) Unlock(key string) {
	m.get(key).Unlock()
}

func (m *Mutex) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}
