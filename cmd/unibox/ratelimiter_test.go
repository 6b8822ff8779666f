package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func trackedClients(rl *RateLimiter) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.requests)
}

func TestRateLimiter_EnforcesBudget(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	var results []bool
	for i := 0; i < 5; i++ {
		results = append(results, rl.Allow("203.0.113.7"))
	}
	assert.Equal(t, []bool{true, true, true, false, false}, results)
}

func TestRateLimiter_BudgetsAreNotShared(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("198.51.100.1"))
	assert.False(t, rl.Allow("198.51.100.1"))
	assert.True(t, rl.Allow("198.51.100.2"), "a second client still has its own budget")
}

func TestRateLimiter_BudgetReturnsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 60*time.Millisecond)
	const ip = "203.0.113.9"

	assert.True(t, rl.Allow(ip))
	assert.True(t, rl.Allow(ip))
	assert.False(t, rl.Allow(ip))

	time.Sleep(70 * time.Millisecond)

	assert.True(t, rl.Allow(ip), "spent budget comes back once the window passes")
}

func TestRateLimiter_WindowSlidesPerTimestamp(t *testing.T) {
	rl := NewRateLimiter(2, 90*time.Millisecond)
	const ip = "203.0.113.11"

	assert.True(t, rl.Allow(ip))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow(ip))
	assert.False(t, rl.Allow(ip))

	// 40ms later the first stamp has aged out of the window but the
	// second one still counts, so exactly one slot opens.
	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.Allow(ip))
	assert.False(t, rl.Allow(ip))
}

func TestRateLimiter_DegenerateLimits(t *testing.T) {
	t.Run("zero denies everyone", func(t *testing.T) {
		rl := NewRateLimiter(0, time.Minute)
		assert.False(t, rl.Allow("203.0.113.1"))
		assert.False(t, rl.Allow("203.0.113.2"))
	})

	t.Run("negative behaves like zero", func(t *testing.T) {
		rl := NewRateLimiter(-3, time.Minute)
		assert.False(t, rl.Allow("203.0.113.1"))
	})

	t.Run("nanosecond window never accumulates", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Nanosecond)
		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("203.0.113.1"))
		}
	})

	t.Run("day long window does not decay in test time", func(t *testing.T) {
		rl := NewRateLimiter(1, 24*time.Hour)
		assert.True(t, rl.Allow("203.0.113.1"))
		time.Sleep(20 * time.Millisecond)
		assert.False(t, rl.Allow("203.0.113.1"))
	})
}

func TestRateLimiter_SweepEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 40*time.Millisecond)

	for i := 0; i < 64; i++ {
		rl.Allow(fmt.Sprintf("10.1.%d.%d", i/8, i%8))
	}
	assert.Equal(t, 64, trackedClients(rl))

	time.Sleep(50 * time.Millisecond)

	// The next call runs the once-per-window sweep, which drops every
	// client whose stamps all expired.
	rl.Allow("10.9.9.9")
	assert.Equal(t, 1, trackedClients(rl))
}

func TestRateLimiter_BoundedUnderChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping churn test in short mode")
	}

	rl := NewRateLimiter(5, 30*time.Millisecond)

	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; time.Now().Before(deadline); i++ {
		rl.Allow(fmt.Sprintf("172.16.%d.%d", i%200, i%251))
	}

	time.Sleep(40 * time.Millisecond)
	rl.Allow("192.0.2.1")

	assert.LessOrEqual(t, trackedClients(rl), 2, "idle clients from the churn phase should be reclaimed")
}

func TestRateLimiter_ConcurrentClients(t *testing.T) {
	rl := NewRateLimiter(8, time.Minute)

	const workers = 40
	var wg sync.WaitGroup
	var allowed atomic.Int64

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			ip := fmt.Sprintf("198.51.100.%d", w%4)
			for i := 0; i < 25; i++ {
				if rl.Allow(ip) {
					allowed.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	// Four distinct clients with eight slots each inside a minute-long
	// window: exactly 32 grants no matter how the goroutines interleave.
	assert.Equal(t, int64(32), allowed.Load())
}

func TestRateLimiter_ConcurrentSweeps(t *testing.T) {
	rl := NewRateLimiter(2, 5*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(8)
	for w := 0; w < 8; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rl.Allow(fmt.Sprintf("10.0.%d.%d", w, i%16))
				if i%50 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(w)
	}
	wg.Wait()
}
