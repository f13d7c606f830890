// Package server implements a token bucket limiter that throttles how fast a
// single connection may push protocol messages at the relay.
package server

import (
	"sync"
	"time"
)

// tokenBucket meters inbound messages: a connection may burst up to capacity
// messages, and the allowance grows back continuously so that a full refill
// takes one configured interval.
type tokenBucket struct {
	mu       sync.Mutex
	level    float64
	capacity float64
	perSec   float64
	updated  time.Time
}

func newTokenBucket(capacity int, interval time.Duration) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &tokenBucket{
		level:    float64(capacity),
		capacity: float64(capacity),
		perSec:   float64(capacity) / interval.Seconds(),
		updated:  time.Now(),
	}
}

// allow consumes one token if available and reports whether the message may
// proceed.
func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	if tb.level < 1 {
		return false
	}
	tb.level--
	return true
}

// refillLocked credits tokens for the time elapsed since the last call,
// capped at capacity. Callers must hold mu.
func (tb *tokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.updated).Seconds()
	tb.updated = now
	if elapsed <= 0 {
		return
	}

	tb.level += elapsed * tb.perSec
	if tb.level > tb.capacity {
		tb.level = tb.capacity
	}
}
