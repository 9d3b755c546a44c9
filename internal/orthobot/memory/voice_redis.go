package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

const (
	redisSessionPrefix = "orthobot:voice:session:"
	redisActivePrefix  = "orthobot:voice:active:"
	redisUserPrefix    = "orthobot:voice:user:"

	// DefaultSessionMaxAge bounds the lifetime of an abandoned session.
	DefaultSessionMaxAge = time.Hour
)

// RedisVoiceStore keeps voice sessions in Redis. Every session key carries
// a TTL of maxAge, so expiry needs no sweep. Updates use WATCH/MULTI/EXEC
// for optimistic locking.
type RedisVoiceStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ VoiceStore = (*RedisVoiceStore)(nil)

// NewRedisVoiceStore creates a Redis-backed store. A non-positive maxAge
// falls back to DefaultSessionMaxAge.
func NewRedisVoiceStore(client *redis.Client, maxAge time.Duration) *RedisVoiceStore {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &RedisVoiceStore{client: client, ttl: maxAge}
}

// Create writes the session, its index entry and, for a live call, the
// user's active pointer in one MULTI. A pointer left behind by a session
// that no longer exists does not block the user.
func (s *RedisVoiceStore) Create(ctx context.Context, vs *VoiceSession) error {
	vs.Version = 1
	val, err := json.Marshal(vs)
	if err != nil {
		return fault.Storage("voice create", err)
	}

	activeKey := redisActivePrefix + vs.UserID
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		if vs.IsActive {
			owner, err := tx.Get(ctx, activeKey).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				n, err := tx.Exists(ctx, redisSessionPrefix+owner).Result()
				if err != nil {
					return err
				}
				if n > 0 {
					return ErrActiveSessionExists
				}
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisSessionPrefix+vs.SessionID, val, s.ttl)
			if vs.IsActive {
				pipe.Set(ctx, activeKey, vs.SessionID, s.ttl)
			}
			pipe.ZAdd(ctx, redisUserPrefix+vs.UserID, redis.Z{
				Score:  float64(vs.LastActiveAt.UnixMilli()),
				Member: vs.SessionID,
			})
			pipe.Expire(ctx, redisUserPrefix+vs.UserID, s.ttl)
			return nil
		})
		return err
	}, activeKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrActiveSessionExists):
		return err
	case errors.Is(err, redis.TxFailedErr):
		// Someone else moved the active pointer between WATCH and EXEC.
		return ErrActiveSessionExists
	default:
		return fault.Storage("voice create", err)
	}
}

func (s *RedisVoiceStore) Get(ctx context.Context, sessionID string) (*VoiceSession, error) {
	val, err := s.client.Get(ctx, redisSessionPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fault.Storage("voice get", err)
	}
	var vs VoiceSession
	if err := json.Unmarshal(val, &vs); err != nil {
		return nil, fault.Storage("voice get", fmt.Errorf("decode session %s: %w", sessionID, err))
	}
	return &vs, nil
}

func (s *RedisVoiceStore) ActiveForUser(ctx context.Context, userID string) (*VoiceSession, error) {
	id, err := s.client.Get(ctx, redisActivePrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fault.Storage("voice active", err)
	}
	vs, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		s.dropStaleActive(ctx, userID, id)
	}
	return vs, err
}

// dropStaleActive removes the user's active pointer if it still names the
// missing session id.
func (s *RedisVoiceStore) dropStaleActive(ctx context.Context, userID, id string) {
	activeKey := redisActivePrefix + userID
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, activeKey).Result()
		if err != nil || owner != id {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, activeKey)
			return nil
		})
		return err
	}, activeKey)
	if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, redis.TxFailedErr) {
		slog.Warn("memory: drop stale active pointer", "user_id", userID, "session_id", id, "err", err)
	}
}

func (s *RedisVoiceStore) Update(ctx context.Context, vs *VoiceSession) error {
	key := redisSessionPrefix + vs.SessionID
	activeKey := redisActivePrefix + vs.UserID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var stored VoiceSession
		if err := json.Unmarshal(val, &stored); err != nil {
			return err
		}
		if stored.Version != vs.Version {
			return ErrVersionConflict
		}

		next := *vs
		next.Version++
		newVal, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		// Keep the original creation-based expiry.
		ttl := time.Until(stored.CreatedAt.Add(s.ttl))
		if ttl <= 0 {
			ttl = time.Second
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, ttl)
			pipe.ZAdd(ctx, redisUserPrefix+vs.UserID, redis.Z{
				Score:  float64(vs.LastActiveAt.UnixMilli()),
				Member: vs.SessionID,
			})
			if vs.IsActive {
				pipe.Set(ctx, activeKey, vs.SessionID, ttl)
			} else if stored.IsActive {
				pipe.Del(ctx, activeKey)
			}
			return nil
		})
		if err != nil {
			return err
		}
		vs.Version = next.Version
		return nil
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrVersionConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	default:
		return fault.Storage("voice update", err)
	}
}

func (s *RedisVoiceStore) Delete(ctx context.Context, sessionID string) error {
	vs, err := s.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	activeKey := redisActivePrefix + vs.UserID
	owner, err := s.client.Get(ctx, activeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fault.Storage("voice delete", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisSessionPrefix+sessionID)
		pipe.ZRem(ctx, redisUserPrefix+vs.UserID, sessionID)
		if owner == sessionID {
			pipe.Del(ctx, activeKey)
		}
		return nil
	})
	if err != nil {
		return fault.Storage("voice delete", err)
	}
	return nil
}

// ListByUser skips index entries whose session key has already expired.
func (s *RedisVoiceStore) ListByUser(ctx context.Context, userID string, limit int) ([]*VoiceSession, error) {
	ids, err := s.client.ZRevRange(ctx, redisUserPrefix+userID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fault.Storage("voice list", err)
	}
	var out []*VoiceSession
	for _, id := range ids {
		vs, err := s.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vs)
	}
	return out, nil
}

// DeleteExpired is a no-op: session keys expire through their TTL.
func (s *RedisVoiceStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisVoiceStore) CountActive(ctx context.Context) (int, error) {
	var n int
	iter := s.client.Scan(ctx, 0, redisActivePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fault.Storage("voice count", err)
	}
	return n, nil
}
