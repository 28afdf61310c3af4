package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadIncludesEstimatorDefaults(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "CHUNK_SIZE", "CHUNK_OVERLAP", "RAG_TOP_K", "RATE_FALLBACK",
		"RATE_TIMEOUT", "GENERATION_TIMEOUT", "GENERATION_SCHEMA_RETRIES", "DEFAULT_CURRENCY", "OPENAI_MODEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ChunkSize != 1200 || cfg.ChunkOverlap != 150 {
		t.Fatalf("expected chunking 1200/150, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.RAGTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.RAGTopK)
	}
	if cfg.RateFallback != 1100.0 {
		t.Fatalf("expected fallback rate 1100, got %g", cfg.RateFallback)
	}
	if cfg.RateTimeout != 5*time.Second {
		t.Fatalf("expected rate timeout 5s, got %s", cfg.RateTimeout)
	}
	if cfg.GenerationTimeout != 60*time.Second {
		t.Fatalf("expected generation timeout 60s, got %s", cfg.GenerationTimeout)
	}
	if cfg.GenerationSchemaRetries != 1 {
		t.Fatalf("expected one schema retry, got %d", cfg.GenerationSchemaRetries)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Fatalf("expected default currency USD, got %q", cfg.DefaultCurrency)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("expected default model gpt-4o, got %q", cfg.OpenAIModel)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("RAG_TOP_K", "3")
	t.Setenv("RATE_TIMEOUT", "2")
	t.Setenv("GENERATION_TIMEOUT", "90s")
	t.Setenv("DEFAULT_CURRENCY", "ars")
	t.Setenv("API_CORS_ORIGINS", "http://localhost:8501, https://ui.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ChunkSize != 800 || cfg.RAGTopK != 3 {
		t.Fatalf("unexpected overrides: chunk=%d k=%d", cfg.ChunkSize, cfg.RAGTopK)
	}
	if cfg.RateTimeout != 2*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.RateTimeout)
	}
	if cfg.GenerationTimeout != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.GenerationTimeout)
	}
	if cfg.DefaultCurrency != "ARS" {
		t.Fatalf("expected upper-cased currency, got %q", cfg.DefaultCurrency)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://ui.example.com" {
		t.Fatalf("unexpected cors origins: %#v", cfg.CORSOrigins)
	}
}

func TestLoadFileValuesSitBeneathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estimator.yaml")
	content := "rag_top_k: 7\nchunk_size: 600\nindex_backend: qdrant\napi_cors_origins:\n  - http://a\n  - http://b\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	clearEnv(t, "RAG_TOP_K", "INDEX_BACKEND", "API_CORS_ORIGINS")
	t.Setenv("CHUNK_SIZE", "900")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RAGTopK != 7 {
		t.Fatalf("expected file value 7, got %d", cfg.RAGTopK)
	}
	if cfg.ChunkSize != 900 {
		t.Fatalf("expected env to win over file, got %d", cfg.ChunkSize)
	}
	if cfg.IndexBackend != "qdrant" {
		t.Fatalf("expected qdrant backend, got %q", cfg.IndexBackend)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected list from file, got %#v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("rag_top_k: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		LLMProvider:       "ollama",
		EmbeddingProvider: "local",
		IndexBackend:      "memory",
		ChunkSize:         1200,
		ChunkOverlap:      150,
		RAGTopK:           5,
		RateFallback:      1100,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := base
	bad.ChunkOverlap = 1200
	bad.LLMProvider = "anthropic"
	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "CHUNK_OVERLAP") || !strings.Contains(err.Error(), "LLM_PROVIDER") {
		t.Fatalf("expected both problems reported, got %v", err)
	}

	needsKey := base
	needsKey.LLMProvider = "openai"
	if err := needsKey.Validate(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Config{
		OpenAIAPIKey:       "sk-secret",
		ExchangeRateAPIKey: "rate-secret",
		PostgresDSN:        "postgres://u:p@h/db",
	}
	red := cfg.Redacted()
	if red.OpenAIAPIKey != "***" || red.ExchangeRateAPIKey != "***" || red.PostgresDSN != "***" {
		t.Fatalf("expected secrets redacted, got %+v", red)
	}
	if cfg.OpenAIAPIKey != "sk-secret" {
		t.Fatalf("Redacted must not mutate the receiver")
	}
}
