package ingest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	locks := newKeyedLock()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("snd:S532:1985")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Empty(t, locks.locks)
}

func TestKeyedLockDistinctKeysAreIndependent(t *testing.T) {
	locks := newKeyedLock()

	unlockA := locks.lock("snd:S532:1985")
	defer unlockA()

	// A different key must not block behind the held one.
	done := make(chan struct{})
	go func() {
		unlock := locks.lock("hh:HH-2024-00001234")
		unlock()
		close(done)
	}()
	<-done
}

func TestKeyedLockReclaimsIdleEntries(t *testing.T) {
	locks := newKeyedLock()

	unlockA := locks.lock("psn:1234-5678-9012")
	unlockB := locks.lock("hh:HH-2024-00001234")
	assert.Len(t, locks.locks, 2)

	unlockA()
	assert.Len(t, locks.locks, 1)

	unlockB()
	assert.Empty(t, locks.locks)
}

func TestKeyedLockEntrySurvivesWhileWaited(t *testing.T) {
	locks := newKeyedLock()

	unlock := locks.lock("snd:S532:1985")
	waiting := make(chan struct{})
	released := make(chan struct{})
	go func() {
		close(waiting)
		inner := locks.lock("snd:S532:1985")
		inner()
		close(released)
	}()
	<-waiting

	// The holder's unlock must not evict the entry out from under the waiter.
	unlock()
	<-released
	assert.Empty(t, locks.locks)
}
