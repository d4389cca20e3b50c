package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	// Given many goroutines incrementing a counter under the same key
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("uid-bob")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	// Then no increment is lost and no entry is left behind
	req.Equal(100, counter)
	req.Equal(0, locks.Len())
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	unlockAlice := locks.Lock("uid-alice")
	defer unlockAlice()

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("uid-bob")
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		req.Fail("lock on another key should not wait")
	}
}
