// Package block maintains an in-memory inverted index from blocking keys to
// entity IDs. Candidate retrieval unions the postings of a record's keys, so
// only entities sharing at least one cheap signature are ever scored.
package block

import (
	"sync"

	id "registro/pkg/domain"
)

// DefaultCandidateCap bounds how many candidates a single lookup may return.
// A pathological key (very common surname, shared birth year) must not turn
// one ingestion into an unbounded scan.
const DefaultCandidateCap = 500

// Index is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	postings map[string][]id.EntityID
	keysByID map[id.EntityID][]string
	cap      int
}

type Option func(*Index)

// WithCandidateCap overrides the lookup bound. cap <= 0 keeps the default.
func WithCandidateCap(cap int) Option {
	return func(ix *Index) {
		if cap > 0 {
			ix.cap = cap
		}
	}
}

func NewIndex(opts ...Option) *Index {
	ix := &Index{
		postings: make(map[string][]id.EntityID),
		keysByID: make(map[id.EntityID][]string),
		cap:      DefaultCandidateCap,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Insert registers an entity under each of its blocking keys. Re-inserting an
// entity replaces its previous keys, which keeps the index consistent after a
// merge updates the canonical record.
func (ix *Index) Insert(entityID id.EntityID, keys []string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.keysByID[entityID]; ok {
		for _, key := range old {
			ix.postings[key] = removeID(ix.postings[key], entityID)
			if len(ix.postings[key]) == 0 {
				delete(ix.postings, key)
			}
		}
	}

	stored := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		ix.postings[key] = append(ix.postings[key], entityID)
		stored = append(stored, key)
	}
	ix.keysByID[entityID] = stored
}

// Remove drops an entity from all of its postings.
func (ix *Index) Remove(entityID id.EntityID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, key := range ix.keysByID[entityID] {
		ix.postings[key] = removeID(ix.postings[key], entityID)
		if len(ix.postings[key]) == 0 {
			delete(ix.postings, key)
		}
	}
	delete(ix.keysByID, entityID)
}

// Candidates returns the deduplicated union of entities indexed under any of
// the given keys, capped at the configured bound. truncated reports whether
// the cap cut the result short.
func (ix *Index) Candidates(keys []string) (candidates []id.EntityID, truncated bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[id.EntityID]struct{})
	for _, key := range keys {
		for _, entityID := range ix.postings[key] {
			if _, ok := seen[entityID]; ok {
				continue
			}
			if len(candidates) >= ix.cap {
				return candidates, true
			}
			seen[entityID] = struct{}{}
			candidates = append(candidates, entityID)
		}
	}
	return candidates, false
}

// Reset clears all postings, used before a full rebuild from the store.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.postings = make(map[string][]id.EntityID)
	ix.keysByID = make(map[id.EntityID][]string)
}

// Len reports the number of indexed entities.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keysByID)
}

// KeyCount reports the number of distinct blocking keys held.
func (ix *Index) KeyCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.postings)
}

func removeID(ids []id.EntityID, target id.EntityID) []id.EntityID {
	for i, v := range ids {
		if v == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
