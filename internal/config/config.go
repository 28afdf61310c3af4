package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort             string
	LogLevel            string
	CORSOrigins         []string
	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration

	CorpusDir            string
	CorpusWatch          bool
	CorpusWatchDebounce  time.Duration
	NATSURL              string
	CorpusReindexSubject string

	PostgresDSN string

	LLMProvider       string
	EmbeddingProvider string
	IndexBackend      string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIEmbedModel string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	QdrantURL              string
	QdrantCollectionPrefix string

	LocalEmbedDimensions int
	EmbedBatchSize       int

	ChunkSize    int
	ChunkOverlap int
	RAGTopK      int

	ExchangeRateAPIKey  string
	ExchangeRateBaseURL string
	RateFallback        float64
	RateTimeout         time.Duration

	GenerationTimeout       time.Duration
	GenerationSchemaRetries int
	MaxDescriptionChars     int
	DefaultCurrency         string

	RetryMaxAttempts   int
	BreakerEnabled     bool
	BreakerOpenTimeout time.Duration
}

// Load reads configuration from the environment. When CONFIG_FILE points to a
// flat YAML map its values act as defaults beneath the environment.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	return Config{
		APIPort:             src.mustEnv("API_PORT", "8080"),
		LogLevel:            src.mustEnv("LOG_LEVEL", "info"),
		CORSOrigins:         splitList(src.mustEnv("API_CORS_ORIGINS", "*")),
		APIRateLimitRPS:     src.mustEnvFloat("API_RATE_LIMIT_RPS", 5),
		APIRateLimitBurst:   src.mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:      src.mustEnvInt("API_MAX_IN_FLIGHT", 16),
		APIBackpressureWait: src.mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		CorpusDir:            src.mustEnv("CORPUS_DIR", "./data"),
		CorpusWatch:          src.mustEnvBool("CORPUS_WATCH", false),
		CorpusWatchDebounce:  src.mustEnvDuration("CORPUS_WATCH_DEBOUNCE", 2*time.Second),
		NATSURL:              src.mustEnv("NATS_URL", ""),
		CorpusReindexSubject: src.mustEnv("CORPUS_REINDEX_SUBJECT", "corpus.reindex"),

		PostgresDSN: src.mustEnv("POSTGRES_DSN", ""),

		LLMProvider:       strings.ToLower(src.mustEnv("LLM_PROVIDER", "openai")),
		EmbeddingProvider: strings.ToLower(src.mustEnv("EMBEDDING_PROVIDER", "openai")),
		IndexBackend:      strings.ToLower(src.mustEnv("INDEX_BACKEND", "memory")),

		OpenAIAPIKey:     src.mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    src.mustEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:      src.mustEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIEmbedModel: src.mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		OllamaURL:        src.mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   src.mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: src.mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		QdrantURL:              src.mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollectionPrefix: src.mustEnv("QDRANT_COLLECTION_PREFIX", "repair_manuals"),

		LocalEmbedDimensions: src.mustEnvInt("LOCAL_EMBED_DIMENSIONS", 256),
		EmbedBatchSize:       src.mustEnvInt("EMBED_BATCH_SIZE", 32),

		ChunkSize:    src.mustEnvInt("CHUNK_SIZE", 1200),
		ChunkOverlap: src.mustEnvInt("CHUNK_OVERLAP", 150),
		RAGTopK:      src.mustEnvInt("RAG_TOP_K", 5),

		ExchangeRateAPIKey:  src.mustEnv("EXCHANGERATE_API_KEY", ""),
		ExchangeRateBaseURL: src.mustEnv("EXCHANGERATE_BASE_URL", "https://v6.exchangerate-api.com/v6"),
		RateFallback:        src.mustEnvFloat("RATE_FALLBACK", 1100.0),
		RateTimeout:         src.mustEnvDuration("RATE_TIMEOUT", 5*time.Second),

		GenerationTimeout:       src.mustEnvDuration("GENERATION_TIMEOUT", 60*time.Second),
		GenerationSchemaRetries: src.mustEnvInt("GENERATION_SCHEMA_RETRIES", 1),
		MaxDescriptionChars:     src.mustEnvInt("MAX_DESCRIPTION_CHARS", 4000),
		DefaultCurrency:         strings.ToUpper(src.mustEnv("DEFAULT_CURRENCY", "USD")),

		RetryMaxAttempts:   src.mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		BreakerEnabled:     src.mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		BreakerOpenTimeout: src.mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER: unsupported value %q", c.LLMProvider))
	}
	switch c.EmbeddingProvider {
	case "openai", "ollama", "local":
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER: unsupported value %q", c.EmbeddingProvider))
	}
	switch c.IndexBackend {
	case "memory", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("INDEX_BACKEND: unsupported value %q", c.IndexBackend))
	}
	if (c.LLMProvider == "openai" || c.EmbeddingProvider == "openai") && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.RAGTopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAGTopK))
	}
	if c.RateFallback <= 0 {
		errs = append(errs, fmt.Errorf("RATE_FALLBACK must be positive, got %g", c.RateFallback))
	}
	if c.GenerationSchemaRetries < 0 {
		errs = append(errs, fmt.Errorf("GENERATION_SCHEMA_RETRIES must not be negative, got %d", c.GenerationSchemaRetries))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe for startup logs.
func (c Config) Redacted() Config {
	c.OpenAIAPIKey = redact(c.OpenAIAPIKey)
	c.ExchangeRateAPIKey = redact(c.ExchangeRateAPIKey)
	if c.PostgresDSN != "" {
		c.PostgresDSN = "***"
	}
	return c
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}

type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch typed := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(typed)
		}
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func (s source) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
