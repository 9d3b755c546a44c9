// Package ratelimit provides the per-user sliding-window throttle applied to
// chat messages before they reach the cache or the LLM.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit is the maximum number of messages allowed per user per
	// window when no explicit limit is configured.
	DefaultLimit = 15

	// DefaultWindow is the sliding window duration.
	DefaultWindow = time.Minute
)

// Limiter enforces a per-user sliding-window rate limit.
//
// Internally it holds the request timestamps for each user within the
// current window and prunes stale entries on every Allow call. This keeps
// memory bounded to O(limit) entries per active user. State is process-local
// and resets on restart.
//
// Limiter is safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string][]time.Time // userID → request timestamps in window
}

// New returns a Limiter that allows at most limit requests per user within
// window.
//
// If limit ≤ 0 it defaults to DefaultLimit.
// If window ≤ 0 it defaults to one minute.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
	}
}

// Allow returns true when the user may send another message and records the
// current timestamp. A denied request is not recorded.
func (l *Limiter) Allow(userID string) bool {
	return l.allowAt(userID, time.Now())
}

func (l *Limiter) allowAt(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	valid := l.prune(userID, now)
	if len(valid) >= l.limit {
		l.counters[userID] = valid
		return false
	}
	l.counters[userID] = append(valid, now)
	return true
}

// Remaining returns the number of requests the user can still make within
// the current window.
func (l *Limiter) Remaining(userID string) int {
	return l.remainingAt(userID, time.Now())
}

func (l *Limiter) remainingAt(userID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rem := l.limit - len(l.prune(userID, now))
	if rem < 0 {
		return 0
	}
	return rem
}

// Sweep drops users whose timestamps have all left the window and returns
// how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID := range l.counters {
		if len(l.prune(userID, now)) == 0 {
			delete(l.counters, userID)
			removed++
		}
	}
	return removed
}

// prune must be called with l.mu held.
func (l *Limiter) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	existing := l.counters[userID]
	valid := existing[:0] // reuse backing array
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	l.counters[userID] = valid
	return valid
}
