package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/metrics"
	"github.com/bdobrica/OrthoBot/internal/orthobot/ratelimit"
)

// sweepTimeout bounds one sweep run.
const sweepTimeout = time.Minute

// Sweeper periodically drops expired state: voice sessions past their max
// age, stale cache entries, idle rate-limit windows and expired share
// links. It also refreshes the active voice session gauge. Any collaborator
// may be nil.
type Sweeper struct {
	voice   *memory.VoiceService
	cache   cache.Cache
	limiter *ratelimit.Limiter
	history *history.Service
	metrics *metrics.Metrics

	cron *cron.Cron
	now  func() time.Time
}

// SweepReport counts what one sweep removed.
type SweepReport struct {
	VoiceSessions int
	CacheEntries  int
	RateWindows   int
	SharedChats   int
}

// NewSweeper creates a Sweeper. It does not schedule anything until Start.
func NewSweeper(voice *memory.VoiceService, c cache.Cache, limiter *ratelimit.Limiter, hist *history.Service, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		voice:   voice,
		cache:   c,
		limiter: limiter,
		history: hist,
		metrics: m,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start schedules Sweep on the given cron spec (e.g. "@every 5m").
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	slog.Info("sweeper: scheduled", "schedule", schedule)
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs every cleanup once. Failures are logged and the remaining
// targets still run.
func (s *Sweeper) Sweep(ctx context.Context) SweepReport {
	var rep SweepReport
	now := s.now()

	if s.voice != nil {
		n, err := s.voice.CleanupExpired(ctx)
		if err != nil {
			slog.Warn("sweeper: voice cleanup failed", "err", err)
		}
		rep.VoiceSessions = n
		s.metrics.SweepRemoved("voice", n)

		if active, err := s.voice.ActiveSessions(ctx); err != nil {
			slog.Warn("sweeper: count voice sessions", "err", err)
		} else {
			s.metrics.SetActiveVoiceCalls(active)
		}
	}

	if s.cache != nil {
		n, err := s.cache.Purge(ctx, now)
		if err != nil {
			slog.Warn("sweeper: cache purge failed", "err", err)
		}
		rep.CacheEntries = n
		s.metrics.SweepRemoved("cache", n)
	}

	if s.limiter != nil {
		rep.RateWindows = s.limiter.Sweep(now)
		s.metrics.SweepRemoved("ratelimit", rep.RateWindows)
	}

	if s.history != nil {
		n, err := s.history.PurgeExpiredShares(ctx, now)
		if err != nil {
			slog.Warn("sweeper: share purge failed", "err", err)
		}
		rep.SharedChats = n
		s.metrics.SweepRemoved("shares", n)
	}

	if rep != (SweepReport{}) {
		slog.Info("sweeper: removed expired state",
			"voice_sessions", rep.VoiceSessions,
			"cache_entries", rep.CacheEntries,
			"rate_windows", rep.RateWindows,
			"shared_chats", rep.SharedChats)
	}
	return rep
}
