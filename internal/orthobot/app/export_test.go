package app

import "time"

// SetClock replaces the clock the sweeper passes to cache and limiter sweeps.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }
