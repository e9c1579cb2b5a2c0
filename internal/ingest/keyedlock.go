package ingest

import "sync"

// keyedLock serializes registry commits per blocking key so two workers never
// both create a new entity for what turns out to be the same person. Matching
// itself stays fully parallel; only the commit section takes the lock.
//
// Entries are reference-counted and deleted on last unlock, so the map only
// holds keys with an active holder or waiter rather than every key ever seen.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key and returns its unlock func. An empty key
// maps to a shared bucket, which is correct if overly conservative.
func (k *keyedLock) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
