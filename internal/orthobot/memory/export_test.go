package memory

import "time"

// SetClock replaces the service clock for tests.
func (v *VoiceService) SetClock(now func() time.Time) { v.now = now }

// RedisActiveKey is the key holding userID's active session pointer.
func RedisActiveKey(userID string) string { return redisActivePrefix + userID }

// RedisSessionKey is the key holding a serialised session.
func RedisSessionKey(sessionID string) string { return redisSessionPrefix + sessionID }
