package core

import "sync"

// keyedMutex provides per-key mutual exclusion.
//
// Ingestion holds the (entity, space) lock across the resolver's
// check-then-act so that two concurrent ingestions of the same fact cannot
// both decide "create". Locks are never released from the map; the key space
// is bounded by the number of entities actively ingesting.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the key, creating it on first use, and returns
// the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
