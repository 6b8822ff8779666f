package main

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-IP request budget over a sliding window.
type RateLimiter struct {
	mu          sync.RWMutex
	requests    map[string][]time.Time
	limit       int
	window      time.Duration
	lastCleanup time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests:    make(map[string][]time.Time),
		limit:       limit,
		window:      window,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from ip fits the budget and records it
// when it does.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// A full sweep at most once per window keeps the map from filling up
	// with IPs that stopped talking to us.
	if now.Sub(rl.lastCleanup) >= rl.window {
		rl.cleanupLocked(cutoff)
		rl.lastCleanup = now
	}

	recent := pruneBefore(rl.requests[ip], cutoff)
	if len(recent) >= rl.limit {
		rl.requests[ip] = recent
		return false
	}

	rl.requests[ip] = append(recent, now)
	return true
}

// cleanupLocked drops expired entries across all IPs. Caller holds the lock.
func (rl *RateLimiter) cleanupLocked(cutoff time.Time) {
	for ip, times := range rl.requests {
		recent := pruneBefore(times, cutoff)
		if len(recent) == 0 {
			delete(rl.requests, ip)
		} else {
			rl.requests[ip] = recent
		}
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	return times[idx:]
}
