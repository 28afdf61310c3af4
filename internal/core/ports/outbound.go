package ports

import (
	"context"
	"io"
	"time"

	"github.com/samber/mo"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

// DocumentSource yields decoded documents for an indexing run. Documents that
// fail to decode are reported as warnings, not errors.
type DocumentSource interface {
	Load(ctx context.Context) ([]domain.Document, []domain.LoadWarning, error)
}

// ObjectStorage lists and opens raw corpus files by key.
type ObjectStorage interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor decodes one stored file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, key string) (string, error)
}

// Chunker splits document text into overlapping segments.
type Chunker interface {
	Split(doc domain.Document) []domain.Segment
}

// Embedder builds vectors for segments and query text. The same instance must
// be used at index time and at query time.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// SemanticIndex is a built, read-only nearest-neighbour index.
type SemanticIndex interface {
	Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievedSegment, error)
	Len() int
}

// IndexBuilder constructs a fresh SemanticIndex from embedded segments.
type IndexBuilder interface {
	Build(ctx context.Context, generation int64, segments []domain.Segment, vectors [][]float32) (SemanticIndex, error)
	Backend() string
}

// IndexReleaser is implemented by indexes that hold external resources which
// must be dropped once a newer generation has been swapped in.
type IndexReleaser interface {
	Release(ctx context.Context) error
}

// RateProvider never fails: on any error it returns the fallback constant with
// Degraded set.
type RateProvider interface {
	GetRate(ctx context.Context, target string) domain.RateSnapshot
}

type CompletionRequest struct {
	System   string
	User     string
	JSONMode bool
}

type CompletionResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// CompletionModel is the language-model boundary: instruction + user text in,
// raw text out.
type CompletionModel interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// EstimateSchema describes and validates the structured output contract.
// Parse never coerces: a result is either a complete Estimate or an error.
type EstimateSchema interface {
	Describe() string
	Parse(raw string) mo.Result[domain.Estimate]
}

// EstimateJournal persists finished estimates.
type EstimateJournal interface {
	Record(ctx context.Context, result *domain.EstimateResult) error
	GetEstimate(ctx context.Context, id string) (*domain.EstimateResult, error)
}

// ReindexBus carries explicit re-index triggers between processes.
type ReindexBus interface {
	PublishReindexRequested(ctx context.Context, reason string) error
	SubscribeReindexRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// EstimateObserver receives pipeline measurements.
type EstimateObserver interface {
	ObserveEstimate(outcome string, intent domain.Intent, duration time.Duration)
	ObserveRetrieval(sourceCount int, degraded bool, duration time.Duration)
	ObserveRate(currency string, degraded bool)
	ObserveTokens(model string, promptTokens, completionTokens int)
}

// IndexObserver receives index lifecycle measurements.
type IndexObserver interface {
	ObserveRebuild(outcome string, duration time.Duration, status domain.IndexStatus)
}
