package errhandler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCond_WaitForTimesOut(t *testing.T) {
	mu := &sync.Mutex{}
	c := NewCond(mu, nil)

	mu.Lock()
	start := time.Now()
	woken := c.WaitFor(5 * time.Millisecond)
	elapsed := time.Since(start)
	held := !mu.TryLock()
	mu.Unlock()

	assert.False(t, woken)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.True(t, held, "WaitFor must return with the lock held")
}

func TestCond_BroadcastWakesAllWaiters(t *testing.T) {
	mu := &sync.Mutex{}
	c := NewCond(mu, nil)

	const waiters = 3
	var ready, done sync.WaitGroup
	ready.Add(waiters)
	done.Add(waiters)
	results := make(chan bool, waiters)

	for range waiters {
		go func() {
			defer done.Done()
			mu.Lock()
			defer mu.Unlock()
			ready.Done()
			results <- c.WaitFor(time.Minute)
		}()
	}
	ready.Wait()

	// Every waiter has registered once it released the lock inside WaitFor.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		c.Broadcast()
		return len(results) == waiters
	}, testWaitFor, testTick)
	done.Wait()

	close(results)
	for woken := range results {
		assert.True(t, woken)
	}
}

func TestCond_BroadcastWithoutWaitersIsNoOp(t *testing.T) {
	mu := &sync.Mutex{}
	c := NewCond(mu, nil)

	mu.Lock()
	defer mu.Unlock()
	c.Broadcast()
	c.Broadcast()
	assert.False(t, c.WaitFor(0), "a broadcast before the wait is not remembered")
}

func TestCond_Wait(t *testing.T) {
	mu := &sync.Mutex{}
	c := NewCond(mu, nil)
	flag := false
	done := make(chan struct{})

	go func() {
		defer close(done)
		mu.Lock()
		defer mu.Unlock()
		for !flag {
			c.Wait()
		}
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		flag = true
		c.Broadcast()
		return true
	}, testWaitFor, testTick)

	select {
	case <-done:
	case <-time.After(testWaitFor):
		t.Fatal("waiter was not released")
	}
}
