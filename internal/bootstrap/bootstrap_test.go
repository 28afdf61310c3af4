package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/collision-estimator/internal/config"
	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	manual := "Hood refinish procedure. Sand with P800, apply two coats of 2K clear, flash 10 minutes between coats."
	if err := os.WriteFile(filepath.Join(dir, "hood_manual.txt"), []byte(manual), 0o644); err != nil {
		t.Fatalf("write manual: %v", err)
	}
	return config.Config{
		CorpusDir:               dir,
		LLMProvider:             "ollama",
		EmbeddingProvider:       "local",
		IndexBackend:            "memory",
		OllamaURL:               "http://127.0.0.1:1",
		OllamaGenModel:          "llama3.1:8b",
		OllamaEmbedModel:        "nomic-embed-text",
		LocalEmbedDimensions:    64,
		ChunkSize:               200,
		ChunkOverlap:            20,
		RAGTopK:                 3,
		RateFallback:            1100,
		GenerationSchemaRetries: 1,
		DefaultCurrency:         "USD",
	}
}

func TestNewWiresOfflineStackAndRebuilds(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, offlineConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Bus != nil {
		t.Fatalf("expected no reindex bus without NATS_URL")
	}
	if app.Estimates != nil {
		t.Fatalf("expected no estimate reader without POSTGRES_DSN")
	}
	if got := app.Indexer.Status().State; got != domain.IndexAbsent {
		t.Fatalf("expected absent index before the first rebuild, got %s", got)
	}

	status, err := app.IndexerFor(OriginHTTP).Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if status.State != domain.IndexReady || status.Documents != 1 || status.Segments == 0 {
		t.Fatalf("unexpected status after rebuild: %+v", status)
	}

	result, err := app.Retriever.Search(ctx, "clear coat flash time", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "hood_manual.txt" {
		t.Fatalf("unexpected sources: %v", result.Sources)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.IndexBackend = "faiss"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported index backend")
	}
}

func TestBackgroundTriggersAreNoopsWhenDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, offlineConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if err := app.StartWatcher(ctx); err != nil {
		t.Fatalf("StartWatcher() error = %v", err)
	}
	if err := app.SubscribeReindex(ctx); err != nil {
		t.Fatalf("SubscribeReindex() error = %v", err)
	}
}

func TestProvidersShareOneClientPerEngine(t *testing.T) {
	for _, provider := range []string{"openai", "ollama"} {
		t.Run(provider, func(t *testing.T) {
			cfg := offlineConfig(t)
			cfg.LLMProvider = provider
			cfg.EmbeddingProvider = provider
			clients := &providerClients{cfg: cfg}

			if _, err := newEmbedder(cfg, clients); err != nil {
				t.Fatalf("newEmbedder() error = %v", err)
			}
			openaiAfterEmbed, ollamaAfterEmbed := clients.openai, clients.ollama

			if _, err := newCompletionModel(cfg, clients); err != nil {
				t.Fatalf("newCompletionModel() error = %v", err)
			}
			if clients.openai != openaiAfterEmbed || clients.ollama != ollamaAfterEmbed {
				t.Fatalf("completion model built a second %s client", provider)
			}
			if (clients.openai == nil) == (clients.ollama == nil) {
				t.Fatalf("expected exactly one provider client, got openai=%v ollama=%v", clients.openai != nil, clients.ollama != nil)
			}
		})
	}
}
