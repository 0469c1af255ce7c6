package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	staleAfter    = 10 * time.Minute
	sweepInterval = time.Minute
)

type bucket struct {
	tokens float64
	seen   time.Time
}

// MemoryLimiter is a token bucket per key held in process memory.
// Buckets idle for ten minutes are swept by a background goroutine;
// call Close to stop it.
type MemoryLimiter struct {
	rate  float64 // tokens per second
	burst float64 // bucket capacity
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a limiter refilling rate tokens per second up to burst.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Allow takes one token from key's bucket, refilling it first for the time
// elapsed since the last call. A new key starts with a full bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, seen: now}
		m.buckets[key] = b
	} else {
		b.tokens = min(m.burst, b.tokens+now.Sub(b.seen).Seconds()*m.rate)
		b.seen = now
	}

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleAfter)
	for key, b := range m.buckets {
		if b.seen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
