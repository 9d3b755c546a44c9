// Package app wires OrthoBot's components from configuration and runs the
// HTTP service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/OrthoBot/internal/orthobot/api"
	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
	"github.com/bdobrica/OrthoBot/internal/orthobot/embedding"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
	"github.com/bdobrica/OrthoBot/internal/orthobot/kbupload"
	"github.com/bdobrica/OrthoBot/internal/orthobot/knowledge"
	"github.com/bdobrica/OrthoBot/internal/orthobot/llm"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/metrics"
	"github.com/bdobrica/OrthoBot/internal/orthobot/orchestrator"
	"github.com/bdobrica/OrthoBot/internal/orthobot/ratelimit"
	"github.com/bdobrica/OrthoBot/internal/orthobot/store"
	"github.com/bdobrica/OrthoBot/internal/orthobot/vectorstore"
)

// redisPingTimeout bounds the startup connectivity check.
const redisPingTimeout = 5 * time.Second

// App is the assembled OrthoBot service.
type App struct {
	config   *Config
	store    *store.Store
	redis    *redis.Client
	embedder embedding.Provider
	vectors  vectorstore.Store

	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	cache        cache.Cache
	limiter      *ratelimit.Limiter
	voice        *memory.VoiceService
	history      *history.Service
	orchestrator *orchestrator.Orchestrator

	healthServer *HealthServer
	sweeper      *Sweeper
}

// New builds every component. On error anything already opened is closed.
func New(config *Config) (*App, error) {
	a := &App{config: config}
	if err := a.build(); err != nil {
		a.Stop()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	config := a.config
	slog.Info("configuration loaded", "config", config.LogFields())

	var err error
	a.store, err = store.New(config.DatabasePath)
	if err != nil {
		return fmt.Errorf("app: open database: %w", err)
	}

	if config.usesRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err = a.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("app: redis %s: %w", config.RedisAddr, err)
		}
	}

	a.embedder = newEmbedder(config)
	a.vectors, err = newVectorStore(config)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if config.CacheDriver == DriverRedis {
		a.cache = cache.NewRedis(a.redis, config.CacheTTL)
	} else {
		a.cache = cache.NewMemory(config.CacheTTL)
	}
	a.limiter = ratelimit.New(config.RateLimit, config.RateWindow)

	var voiceStore memory.VoiceStore
	if config.VoiceStore == DriverRedis {
		voiceStore = memory.NewRedisVoiceStore(a.redis, config.VoiceSessionMaxAge)
	} else {
		voiceStore = memory.NewSQLiteVoiceStore(a.store.DB())
	}
	a.voice = memory.NewVoiceService(voiceStore, memory.VoiceConfig{MaxAge: config.VoiceSessionMaxAge})
	a.history = history.New(a.store.DB())

	catalogue, err := loadCatalogue(config.KnowledgeCatalogue)
	if err != nil {
		return err
	}
	router := &knowledge.Router{
		Catalogue:    catalogue,
		Embedder:     a.embedder,
		Searcher:     a.vectors,
		EmbedTimeout: config.EmbeddingTimeout,
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Config{
		LLM:        llm.New(config.LLM),
		Limiter:    a.limiter,
		Cache:      a.cache,
		Knowledge:  router,
		Voice:      a.voice,
		History:    a.history,
		Metrics:    a.metrics,
		LLMTimeout: config.LLMTimeout,
	})
	if err != nil {
		return err
	}

	srv := &api.Server{
		Orchestrator: a.orchestrator,
		Voice:        a.voice,
		History:      a.history,
		Metrics:      a.metrics,
	}
	a.healthServer = NewHealthServer(config.HTTPAddr, a.voice, a.registry)
	a.healthServer.Handle("/", srv.Router())

	a.sweeper = NewSweeper(a.voice, a.cache, a.limiter, a.history, a.metrics)
	return nil
}

func newEmbedder(config *Config) embedding.Provider {
	switch config.EmbeddingProvider {
	case EmbeddingCohere:
		return embedding.NewCohere(embedding.CohereConfig{
			APIKey:  config.EmbeddingAPIKey,
			BaseURL: config.EmbeddingBaseURL,
			Model:   config.EmbeddingModel,
			Timeout: config.EmbeddingTimeout,
		})
	case EmbeddingOpenAI:
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:  config.EmbeddingAPIKey,
			BaseURL: config.EmbeddingBaseURL,
			Model:   config.EmbeddingModel,
			Timeout: config.EmbeddingTimeout,
		})
	}
	slog.Info("embedding disabled; knowledge lookups use the curated catalogue only")
	return embedding.Noop{}
}

func newVectorStore(config *Config) (vectorstore.Store, error) {
	switch config.VectorStore {
	case VectorSupabase:
		s, err := vectorstore.NewSupabase(vectorstore.SupabaseConfig{
			URL:           config.SupabaseURL,
			APIKey:        config.SupabaseKey,
			MatchFunction: config.SupabaseMatchFunction,
			Table:         config.SupabaseTable,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	case VectorQdrant:
		q, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
			URL:        config.QdrantURL,
			APIKey:     config.QdrantAPIKey,
			Collection: config.QdrantCollection,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return q, nil
	}
	return vectorstore.Noop{}, nil
}

func loadCatalogue(path string) (*knowledge.Catalogue, error) {
	if path == "" {
		return knowledge.DefaultCatalogue()
	}
	c, err := knowledge.LoadCatalogue(path)
	if err != nil {
		return nil, fmt.Errorf("app: knowledge catalogue: %w", err)
	}
	return c, nil
}

// Uploader returns a knowledge-base uploader over the configured embedding
// provider and vector store.
func (a *App) Uploader() *kbupload.Uploader {
	return kbupload.New(kbupload.Config{Embedder: a.embedder, Writer: a.vectors})
}

// Sweeper returns the expiry sweeper.
func (a *App) Sweeper() *Sweeper { return a.sweeper }

// Handler returns the full HTTP handler, for tests and embedding.
func (a *App) Handler() *HealthServer { return a.healthServer }

// Run serves HTTP and runs the sweeper until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.healthServer.Start(ctx); err != nil {
		return err
	}

	if a.config.SweepSchedule != "" {
		if err := a.sweeper.Start(a.config.SweepSchedule); err != nil {
			return err
		}
	}

	slog.Info("OrthoBot is running; press Ctrl+C to stop", "addr", a.config.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop releases every resource. It is safe on a partially built App.
func (a *App) Stop() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.healthServer != nil {
		slog.Info("stopping http server")
		a.healthServer.Stop()
	}
	var errs []error
	if a.vectors != nil {
		errs = append(errs, a.vectors.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		slog.Info("closing database")
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("shutdown: close resources", "err", err)
	}
}

// CleanupSessions runs the voice session expiry sweep once.
func (a *App) CleanupSessions(ctx context.Context) (int, error) {
	return a.voice.CleanupExpired(ctx)
}
