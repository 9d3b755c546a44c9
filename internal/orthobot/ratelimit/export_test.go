package ratelimit

import "time"

// AllowAt exposes allowAt for deterministic window tests.
func (l *Limiter) AllowAt(userID string, now time.Time) bool { return l.allowAt(userID, now) }

// RemainingAt exposes remainingAt for deterministic window tests.
func (l *Limiter) RemainingAt(userID string, now time.Time) int { return l.remainingAt(userID, now) }
