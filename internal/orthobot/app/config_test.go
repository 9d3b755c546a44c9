package app_test

import (
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/app"
)

// clearEnv blanks every variable ConfigFromEnv reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HTTP_ADDR", "DATABASE_PATH", "LOG_LEVEL", "LOG_FORMAT",
		"GROQ_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "LLM_PROVIDER", "LLM_TIMEOUT",
		"EMBEDDING_PROVIDER", "EMBEDDING_API_KEY", "COHERE_API_KEY", "EMBEDDING_BASE_URL",
		"EMBEDDING_MODEL", "EMBEDDING_TIMEOUT",
		"VECTOR_STORE", "SUPABASE_URL", "SUPABASE_KEY", "SUPABASE_MATCH_FUNCTION", "SUPABASE_TABLE",
		"QDRANT_URL", "QDRANT_API_KEY", "QDRANT_COLLECTION",
		"CACHE_DRIVER", "VOICE_STORE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"RATE_LIMIT", "RATE_WINDOW", "CACHE_TTL", "VOICE_SESSION_MAX_AGE",
		"SWEEP_SCHEDULE", "KNOWLEDGE_CATALOGUE",
	} {
		t.Setenv(name, "")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := app.ConfigFromEnv()

	if cfg.HTTPAddr != ":8080" || cfg.DatabasePath != "./orthobot.db" {
		t.Errorf("addr/db = %q %q", cfg.HTTPAddr, cfg.DatabasePath)
	}
	if cfg.LLM.BaseURL != "https://api.groq.com/openai/v1" || cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLMTimeout != 20*time.Second {
		t.Errorf("llm timeout = %v", cfg.LLMTimeout)
	}
	if cfg.EmbeddingProvider != app.EmbeddingNone || cfg.VectorStore != app.VectorNone {
		t.Errorf("embedding/vector = %q %q", cfg.EmbeddingProvider, cfg.VectorStore)
	}
	if cfg.CacheDriver != app.DriverMemory || cfg.VoiceStore != app.DriverSQLite {
		t.Errorf("drivers = %q %q", cfg.CacheDriver, cfg.VoiceStore)
	}
	if cfg.RateLimit != 15 || cfg.RateWindow != time.Minute || cfg.CacheTTL != 5*time.Minute {
		t.Errorf("limits = %d %v %v", cfg.RateLimit, cfg.RateWindow, cfg.CacheTTL)
	}
	if cfg.VoiceSessionMaxAge != time.Hour || cfg.SweepSchedule != "@every 5m" {
		t.Errorf("voice/sweep = %v %q", cfg.VoiceSessionMaxAge, cfg.SweepSchedule)
	}
	if cfg.SupabaseMatchFunction != "match_documents" || cfg.SupabaseTable != "kb_vectors" || cfg.QdrantCollection != "kb_vectors" {
		t.Errorf("vector names = %q %q %q", cfg.SupabaseMatchFunction, cfg.SupabaseTable, cfg.QdrantCollection)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "Cohere")
	t.Setenv("COHERE_API_KEY", "co-key")
	t.Setenv("VECTOR_STORE", "qdrant")
	t.Setenv("CACHE_DRIVER", "memcached")
	t.Setenv("RATE_LIMIT", "30")
	t.Setenv("LLM_TIMEOUT", "5s")

	cfg := app.ConfigFromEnv()
	if cfg.EmbeddingProvider != app.EmbeddingCohere || cfg.EmbeddingAPIKey != "co-key" {
		t.Errorf("embedding = %q %q", cfg.EmbeddingProvider, cfg.EmbeddingAPIKey)
	}
	if cfg.VectorStore != app.VectorQdrant {
		t.Errorf("vector store = %q", cfg.VectorStore)
	}
	if cfg.CacheDriver != app.DriverMemory {
		t.Errorf("unknown cache driver should fall back to memory, got %q", cfg.CacheDriver)
	}
	if cfg.RateLimit != 30 || cfg.LLMTimeout != 5*time.Second {
		t.Errorf("rate/timeout = %d %v", cfg.RateLimit, cfg.LLMTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*app.Config)
		upload  bool
		wantErr string
	}{
		{"serve needs llm key", func(c *app.Config) {}, false, "GROQ_API_KEY"},
		{"serve ok", func(c *app.Config) { c.LLM.APIKey = "k" }, false, ""},
		{"embedding without key", func(c *app.Config) {
			c.LLM.APIKey = "k"
			c.EmbeddingProvider = app.EmbeddingCohere
		}, false, "COHERE_API_KEY"},
		{"supabase without url", func(c *app.Config) {
			c.LLM.APIKey = "k"
			c.VectorStore = app.VectorSupabase
		}, false, "SUPABASE_URL"},
		{"upload needs embedding", func(c *app.Config) {}, true, "EMBEDDING_PROVIDER"},
		{"upload needs vector store", func(c *app.Config) {
			c.EmbeddingProvider = app.EmbeddingOpenAI
			c.EmbeddingAPIKey = "k"
		}, true, "VECTOR_STORE"},
		{"upload ok", func(c *app.Config) {
			c.EmbeddingProvider = app.EmbeddingOpenAI
			c.EmbeddingAPIKey = "k"
			c.VectorStore = app.VectorQdrant
			c.QdrantURL = "http://localhost:6334"
		}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := app.ConfigFromEnv()
			tt.mutate(cfg)

			var err error
			if tt.upload {
				err = cfg.ValidateUpload()
			} else {
				err = cfg.ValidateServe()
			}
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_LogFieldsHideSecrets(t *testing.T) {
	clearEnv(t)
	cfg := app.ConfigFromEnv()
	cfg.LLM.APIKey = "gsk_secret"
	cfg.SupabaseKey = "sb_secret"
	cfg.RedisPassword = "hunter2"

	fields := cfg.LogFields()
	for _, k := range []string{"llm_api_key", "supabase_key", "redis_password"} {
		if fields[k] != "[REDACTED]" {
			t.Errorf("%s = %v, want redacted", k, fields[k])
		}
	}
	if fields["llm_model"] != cfg.LLM.Model {
		t.Errorf("llm_model = %v", fields["llm_model"])
	}
}
