package synchronizer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, uint64(1), c.Next(), "a new clock starts at 0")
	assert.Equal(t, uint64(2), c.Next())
	assert.Equal(t, uint64(3), c.Next())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	seqs := make(chan uint64, goroutines*callsPerGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < callsPerGoroutine; i++ {
				seqs <- c.Next()
			}
		}()
	}

	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "seq %d generated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
