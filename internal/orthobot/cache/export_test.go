package cache

import "time"

// SetClock overrides the clock used by Memory for expiry checks.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }
