package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kirillkom/collision-estimator/internal/config"
	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
	"github.com/kirillkom/collision-estimator/internal/core/usecase"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/chunking"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/corpus"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/embedding/local"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/finance/exchangerate"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/llm/openai"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/schema"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/vector/memory"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/collision-estimator/internal/observability/metrics"
)

const serviceName = "collision-estimator"

// Trigger origins recorded on the reindex trigger counter.
const (
	OriginStartup = "startup"
	OriginHTTP    = "http"
	OriginWatcher = "watcher"
	OriginNATS    = "nats"
)

// App holds one instance of every engine for the lifetime of a process.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPServerMetrics
	Metrics     *metrics.EstimatorMetrics

	Source    *corpus.Source
	Indexer   *usecase.CorpusIndexUseCase
	Retriever *usecase.RetrieveUseCase
	Estimator *usecase.EstimateUseCase
	Contract  *schema.EstimateContract

	// Bus is nil unless NATS_URL is configured.
	Bus ports.ReindexBus
	// Estimates is nil unless POSTGRES_DSN is configured.
	Estimates ports.EstimateReader

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.HTTPMetrics = metrics.NewHTTPServerMetrics(serviceName, app.Registry)
	app.Metrics = metrics.NewEstimatorMetrics(serviceName, app.Registry)

	policy := resilience.Config{
		RetryMaxAttempts:   cfg.RetryMaxAttempts,
		BreakerEnabled:     cfg.BreakerEnabled,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}
	executor := resilience.NewExecutor(policy).WithLogger(logger).OnStateChange(app.Metrics.RecordBreakerState)
	rateExecutor := resilience.NewExecutor(policy.SingleAttempt()).WithLogger(logger).OnStateChange(app.Metrics.RecordBreakerState)

	clients := &providerClients{cfg: cfg, executor: executor}
	embedder, err := newEmbedder(cfg, clients)
	if err != nil {
		return nil, err
	}
	model, err := newCompletionModel(cfg, clients)
	if err != nil {
		return nil, err
	}
	builder, err := newIndexBuilder(cfg)
	if err != nil {
		return nil, err
	}

	storage := localfs.New(cfg.CorpusDir)
	text := plaintext.NewExtractor(storage)
	app.Source = corpus.NewSource(storage, map[string]ports.TextExtractor{
		".txt":  text,
		".md":   text,
		".pdf":  pdf.NewExtractor(storage),
		".xlsx": xlsx.NewExtractor(storage),
	})

	app.Indexer = usecase.NewCorpusIndexUseCase(
		app.Source,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		builder,
		cfg.EmbedBatchSize,
		app.Metrics,
		logger,
	)
	app.closeFns = append(app.closeFns, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Indexer.Close(closeCtx)
	})
	app.Retriever = usecase.NewRetrieveUseCase(app.Indexer, cfg.RAGTopK)

	rates := exchangerate.New(exchangerate.Config{
		BaseURL:  cfg.ExchangeRateBaseURL,
		APIKey:   cfg.ExchangeRateAPIKey,
		Fallback: cfg.RateFallback,
		Timeout:  cfg.RateTimeout,
	}, rateExecutor, logger)

	app.Contract, err = schema.New(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load estimate schema: %w", err)
	}
	generator := usecase.NewGenerateUseCase(model, app.Contract, cfg.GenerationTimeout, cfg.GenerationSchemaRetries)

	var journal ports.EstimateJournal
	if cfg.PostgresDSN != "" {
		db, repo, err := openJournal(ctx, cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, err
		}
		journal = repo
		app.closeFns = append(app.closeFns, func() { _ = db.Close() })
	}

	if cfg.NATSURL != "" {
		bus, err := nats.New(cfg.NATSURL, cfg.CorpusReindexSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init reindex bus: %w", err)
		}
		app.Bus = bus
		app.closeFns = append(app.closeFns, bus.Close)
	}

	app.Estimator = usecase.NewEstimateUseCase(
		app.Retriever,
		rates,
		app.Contract,
		generator,
		journal,
		app.Metrics,
		logger,
		usecase.EstimateOptions{
			DefaultCurrency:     cfg.DefaultCurrency,
			MaxDescriptionChars: cfg.MaxDescriptionChars,
			TopK:                cfg.RAGTopK,
		},
	)
	if journal != nil {
		app.Estimates = app.Estimator
	}

	logger.Info("bootstrap complete",
		"llm_provider", cfg.LLMProvider,
		"model", model.Name(),
		"embedder", embedder.Name(),
		"index_backend", builder.Backend(),
		"corpus_dir", cfg.CorpusDir,
		"journal", journal != nil,
		"reindex_bus", app.Bus != nil,
	)
	return app, nil
}

// providerClients builds each provider client at most once so the embedder
// and the completion model share it when they name the same provider.
type providerClients struct {
	cfg      config.Config
	executor *resilience.Executor

	openai *openai.Client
	ollama *ollama.Client
}

func (p *providerClients) openAI() *openai.Client {
	if p.openai == nil {
		p.openai = openai.New(p.cfg.OpenAIAPIKey, p.cfg.OpenAIBaseURL, p.cfg.OpenAIModel, p.cfg.OpenAIEmbedModel, p.executor)
	}
	return p.openai
}

func (p *providerClients) ollamaClient() *ollama.Client {
	if p.ollama == nil {
		p.ollama = ollama.New(p.cfg.OllamaURL, p.cfg.OllamaGenModel, p.cfg.OllamaEmbedModel, p.executor)
	}
	return p.ollama
}

func newEmbedder(cfg config.Config, clients *providerClients) (ports.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openai.NewEmbedder(clients.openAI()), nil
	case "ollama":
		return ollama.NewEmbedder(clients.ollamaClient()), nil
	case "local":
		return local.New(cfg.LocalEmbedDimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newCompletionModel(cfg config.Config, clients *providerClients) (ports.CompletionModel, error) {
	switch cfg.LLMProvider {
	case "openai":
		return openai.NewCompleter(clients.openAI()), nil
	case "ollama":
		return ollama.NewCompleter(clients.ollamaClient()), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func newIndexBuilder(cfg config.Config) (ports.IndexBuilder, error) {
	switch cfg.IndexBackend {
	case "memory":
		return memory.NewBuilder(), nil
	case "qdrant":
		return qdrant.NewBuilder(cfg.QdrantURL, cfg.QdrantCollectionPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported index backend %q", cfg.IndexBackend)
	}
}

func openJournal(ctx context.Context, dsn string) (*sql.DB, *postgres.EstimateRepository, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewEstimateRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

// Rebuild re-indexes the corpus and records where the request came from.
func (a *App) Rebuild(ctx context.Context, origin string) (domain.IndexStatus, error) {
	a.Metrics.RecordReindexTrigger(origin)
	return a.Indexer.Rebuild(ctx)
}

// IndexerFor exposes the index lifecycle to an inbound adapter, attributing
// its rebuilds to origin.
func (a *App) IndexerFor(origin string) ports.CorpusIndexer {
	return originIndexer{app: a, origin: origin}
}

// StartWatcher rebuilds the index whenever the corpus directory settles after
// a change. It is a no-op unless CORPUS_WATCH is enabled.
func (a *App) StartWatcher(ctx context.Context) error {
	if !a.Config.CorpusWatch {
		return nil
	}
	watcher := corpus.NewWatcher(
		a.Config.CorpusDir,
		a.Config.CorpusWatchDebounce,
		a.Source.Supports,
		func(ctx context.Context) error {
			_, err := a.Rebuild(ctx, OriginWatcher)
			return err
		},
		a.Logger,
	)
	return watcher.Start(ctx)
}

// SubscribeReindex blocks until ctx is canceled, rebuilding on every request
// published to the reindex subject. It returns immediately without a bus.
func (a *App) SubscribeReindex(ctx context.Context) error {
	if a.Bus == nil {
		return nil
	}
	a.Logger.Info("reindex subscription started", "subject", a.Config.CorpusReindexSubject)
	return a.Bus.SubscribeReindexRequested(ctx, func(ctx context.Context, reason string) error {
		a.Logger.Info("reindex requested", "reason", reason)
		_, err := a.Rebuild(ctx, OriginNATS)
		return err
	})
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

type originIndexer struct {
	app    *App
	origin string
}

func (o originIndexer) Rebuild(ctx context.Context) (domain.IndexStatus, error) {
	return o.app.Rebuild(ctx, o.origin)
}

func (o originIndexer) Status() domain.IndexStatus {
	return o.app.Indexer.Status()
}
