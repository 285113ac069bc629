package syncutil

import (
	"sync"
	"testing"
)

func TestShardedMutexSerializesSameKey(t *testing.T) {
	var sm ShardedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("usr_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestShardedMutexUnlockReleases(t *testing.T) {
	var sm ShardedMutex

	unlock := sm.Lock("usr_1")
	unlock()

	// Re-acquiring the same key must not deadlock.
	done := make(chan struct{})
	go func() {
		unlock := sm.Lock("usr_1")
		unlock()
		close(done)
	}()
	<-done
}
