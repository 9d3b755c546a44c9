package app

import (
	"fmt"
	"time"

	"github.com/bdobrica/OrthoBot/common/environment"
	"github.com/bdobrica/OrthoBot/common/redact"
	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
	"github.com/bdobrica/OrthoBot/internal/orthobot/llm"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/orchestrator"
	"github.com/bdobrica/OrthoBot/internal/orthobot/ratelimit"
)

// Backend selectors.
const (
	EmbeddingNone   = "none"
	EmbeddingCohere = "cohere"
	EmbeddingOpenAI = "openai"

	VectorNone     = "none"
	VectorSupabase = "supabase"
	VectorQdrant   = "qdrant"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	// HTTPAddr is the listen address of the API and health server.
	HTTPAddr     string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	LLM        llm.Config
	LLMTimeout time.Duration

	// EmbeddingProvider is one of none, cohere or openai.
	EmbeddingProvider string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string
	EmbeddingModel    string
	EmbeddingTimeout  time.Duration

	// VectorStore is one of none, supabase or qdrant.
	VectorStore           string
	SupabaseURL           string
	SupabaseKey           string
	SupabaseMatchFunction string
	SupabaseTable         string
	QdrantURL             string
	QdrantAPIKey          string
	QdrantCollection      string

	// CacheDriver is memory or redis; VoiceStore is sqlite or redis. Both
	// redis drivers share one client.
	CacheDriver   string
	VoiceStore    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit          int
	RateWindow         time.Duration
	CacheTTL           time.Duration
	VoiceSessionMaxAge time.Duration

	// SweepSchedule is a cron spec for the expiry sweeper. Empty disables it.
	SweepSchedule string

	// KnowledgeCatalogue is a YAML catalogue path; empty uses the embedded one.
	KnowledgeCatalogue string
}

// ConfigFromEnv reads the configuration from the environment.
func ConfigFromEnv() *Config {
	embeddingKey := environment.StringOr("EMBEDDING_API_KEY", environment.StringOr("COHERE_API_KEY", ""))
	return &Config{
		HTTPAddr:     environment.StringOr("HTTP_ADDR", ":8080"),
		DatabasePath: environment.StringOr("DATABASE_PATH", "./orthobot.db"),
		LogLevel:     environment.StringOr("LOG_LEVEL", "info"),
		LogFormat:    environment.OneOf("LOG_FORMAT", "text", "text", "json"),

		LLM: llm.Config{
			APIKey:   environment.StringOr("GROQ_API_KEY", ""),
			BaseURL:  environment.StringOr("LLM_BASE_URL", llm.DefaultBaseURL),
			Model:    environment.StringOr("LLM_MODEL", llm.DefaultModel),
			Provider: environment.StringOr("LLM_PROVIDER", "groq"),
		},
		LLMTimeout: environment.DurationOr("LLM_TIMEOUT", orchestrator.DefaultLLMTimeout),

		EmbeddingProvider: environment.OneOf("EMBEDDING_PROVIDER", EmbeddingNone, EmbeddingNone, EmbeddingCohere, EmbeddingOpenAI),
		EmbeddingAPIKey:   embeddingKey,
		EmbeddingBaseURL:  environment.StringOr("EMBEDDING_BASE_URL", ""),
		EmbeddingModel:    environment.StringOr("EMBEDDING_MODEL", ""),
		EmbeddingTimeout:  environment.DurationOr("EMBEDDING_TIMEOUT", 10*time.Second),

		VectorStore:           environment.OneOf("VECTOR_STORE", VectorNone, VectorNone, VectorSupabase, VectorQdrant),
		SupabaseURL:           environment.StringOr("SUPABASE_URL", ""),
		SupabaseKey:           environment.StringOr("SUPABASE_KEY", ""),
		SupabaseMatchFunction: environment.StringOr("SUPABASE_MATCH_FUNCTION", "match_documents"),
		SupabaseTable:         environment.StringOr("SUPABASE_TABLE", "kb_vectors"),
		QdrantURL:             environment.StringOr("QDRANT_URL", ""),
		QdrantAPIKey:          environment.StringOr("QDRANT_API_KEY", ""),
		QdrantCollection:      environment.StringOr("QDRANT_COLLECTION", "kb_vectors"),

		CacheDriver:   environment.OneOf("CACHE_DRIVER", DriverMemory, DriverMemory, DriverRedis),
		VoiceStore:    environment.OneOf("VOICE_STORE", DriverSQLite, DriverSQLite, DriverRedis),
		RedisAddr:     environment.StringOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: environment.StringOr("REDIS_PASSWORD", ""),
		RedisDB:       environment.IntOr("REDIS_DB", 0),

		RateLimit:          environment.IntOr("RATE_LIMIT", ratelimit.DefaultLimit),
		RateWindow:         environment.DurationOr("RATE_WINDOW", ratelimit.DefaultWindow),
		CacheTTL:           environment.DurationOr("CACHE_TTL", cache.DefaultTTL),
		VoiceSessionMaxAge: environment.DurationOr("VOICE_SESSION_MAX_AGE", memory.DefaultSessionMaxAge),

		SweepSchedule:      environment.StringOr("SWEEP_SCHEDULE", "@every 5m"),
		KnowledgeCatalogue: environment.StringOr("KNOWLEDGE_CATALOGUE", ""),
	}
}

// ValidateServe checks the settings the chat server cannot run without.
func (c *Config) ValidateServe() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("app: GROQ_API_KEY is required")
	}
	return c.validateBackends()
}

// ValidateUpload checks the settings the knowledge-base uploader needs.
func (c *Config) ValidateUpload() error {
	if c.EmbeddingProvider == EmbeddingNone {
		return fmt.Errorf("app: EMBEDDING_PROVIDER must be set to upload documents")
	}
	if c.VectorStore == VectorNone {
		return fmt.Errorf("app: VECTOR_STORE must be set to upload documents")
	}
	return c.validateBackends()
}

func (c *Config) validateBackends() error {
	if c.EmbeddingProvider != EmbeddingNone && c.EmbeddingAPIKey == "" {
		return fmt.Errorf("app: embedding provider %s needs COHERE_API_KEY or EMBEDDING_API_KEY", c.EmbeddingProvider)
	}
	switch c.VectorStore {
	case VectorSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("app: supabase needs SUPABASE_URL and SUPABASE_KEY")
		}
	case VectorQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("app: qdrant needs QDRANT_URL")
		}
	}
	return nil
}

func (c *Config) usesRedis() bool {
	return c.CacheDriver == DriverRedis || c.VoiceStore == DriverRedis
}

// LogFields returns the configuration as log attributes with secrets masked.
func (c *Config) LogFields() map[string]any {
	return redact.Map(map[string]any{
		"http_addr":          c.HTTPAddr,
		"database_path":      c.DatabasePath,
		"llm_base_url":       c.LLM.BaseURL,
		"llm_model":          c.LLM.Model,
		"llm_api_key":        c.LLM.APIKey,
		"llm_timeout":        c.LLMTimeout.String(),
		"embedding_provider": c.EmbeddingProvider,
		"embedding_api_key":  c.EmbeddingAPIKey,
		"vector_store":       c.VectorStore,
		"supabase_url":       redact.URL(c.SupabaseURL),
		"supabase_key":       c.SupabaseKey,
		"qdrant_url":         redact.URL(c.QdrantURL),
		"qdrant_api_key":     c.QdrantAPIKey,
		"cache_driver":       c.CacheDriver,
		"voice_store":        c.VoiceStore,
		"redis_addr":         c.RedisAddr,
		"redis_password":     c.RedisPassword,
		"rate_limit":         c.RateLimit,
		"rate_window":        c.RateWindow.String(),
		"cache_ttl":          c.CacheTTL.String(),
		"sweep_schedule":     c.SweepSchedule,
	})
}
