package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

const defaultEmbedBatchSize = 32

// IndexHandle is one immutable generation of the semantic index together with
// the embedder that produced its vectors. Index is nil while the corpus is
// absent.
type IndexHandle struct {
	Index    ports.SemanticIndex
	Embedder ports.Embedder
	Status   domain.IndexStatus
}

// IndexView exposes the generation currently serving queries.
type IndexView interface {
	Current() IndexHandle
}

type CorpusIndexUseCase struct {
	source    ports.DocumentSource
	chunker   ports.Chunker
	embedder  ports.Embedder
	builder   ports.IndexBuilder
	batchSize int
	observer  ports.IndexObserver
	logger    *slog.Logger

	mu         sync.Mutex
	generation int64
	building   atomic.Bool
	current    atomic.Pointer[IndexHandle]
}

func NewCorpusIndexUseCase(
	source ports.DocumentSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	builder ports.IndexBuilder,
	batchSize int,
	observer ports.IndexObserver,
	logger *slog.Logger,
) *CorpusIndexUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	uc := &CorpusIndexUseCase{
		source:    source,
		chunker:   chunker,
		embedder:  embedder,
		builder:   builder,
		batchSize: batchSize,
		observer:  observer,
		logger:    logger,
	}
	uc.current.Store(&IndexHandle{
		Embedder: embedder,
		Status:   domain.IndexStatus{State: domain.IndexAbsent, Backend: builder.Backend()},
	})
	return uc
}

func (uc *CorpusIndexUseCase) Current() IndexHandle {
	return *uc.current.Load()
}

// Status reports the serving generation; State is "building" while a rebuild
// is in progress.
func (uc *CorpusIndexUseCase) Status() domain.IndexStatus {
	status := uc.current.Load().Status
	if uc.building.Load() {
		status.State = domain.IndexBuilding
	}
	return status
}

// Rebuild reads the whole corpus and swaps in a new index generation. The
// previous generation keeps serving until the swap and survives a failed build.
func (uc *CorpusIndexUseCase) Rebuild(ctx context.Context) (domain.IndexStatus, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.building.Store(true)
	defer uc.building.Store(false)

	started := time.Now()
	next, err := uc.build(ctx)
	if err != nil {
		uc.observe("error", started, uc.current.Load().Status)
		uc.logger.Error("index rebuild failed", "error", err, "serving_generation", uc.current.Load().Status.Generation)
		return uc.current.Load().Status, err
	}

	previous := uc.current.Swap(next)
	uc.release(ctx, previous)

	outcome := "ready"
	if next.Index == nil {
		outcome = "absent"
		uc.logger.Warn("corpus is empty, retrieval disabled", "backend", next.Status.Backend, "skipped", len(next.Status.Skipped))
	} else {
		uc.logger.Info("index generation ready",
			"generation", next.Status.Generation,
			"backend", next.Status.Backend,
			"documents", next.Status.Documents,
			"segments", next.Status.Segments,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
	uc.observe(outcome, started, next.Status)
	return next.Status, nil
}

func (uc *CorpusIndexUseCase) build(ctx context.Context) (*IndexHandle, error) {
	docs, warnings, err := uc.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	skipped := make([]string, 0, len(warnings))
	for _, warning := range warnings {
		skipped = append(skipped, warning.Document)
		uc.logger.Warn("corpus document skipped", "document", warning.Document, "error", warning.Err)
	}

	segments := make([]domain.Segment, 0, len(docs)*4)
	for _, doc := range docs {
		for _, segment := range uc.chunker.Split(doc) {
			segment.Seq = len(segments)
			segments = append(segments, segment)
		}
	}

	uc.generation++
	status := domain.IndexStatus{
		State:      domain.IndexAbsent,
		Backend:    uc.builder.Backend(),
		Generation: uc.generation,
		Documents:  len(docs),
		Skipped:    skipped,
		BuiltAt:    time.Now().UTC(),
	}
	if len(segments) == 0 {
		return &IndexHandle{Embedder: uc.embedder, Status: status}, nil
	}

	vectors, err := uc.embedSegments(ctx, segments)
	if err != nil {
		return nil, err
	}

	index, err := uc.builder.Build(ctx, uc.generation, segments, vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	status.State = domain.IndexReady
	status.Segments = len(segments)
	return &IndexHandle{Index: index, Embedder: uc.embedder, Status: status}, nil
}

func (uc *CorpusIndexUseCase) embedSegments(ctx context.Context, segments []domain.Segment) ([][]float32, error) {
	vectors := make([][]float32, 0, len(segments))
	for start := 0; start < len(segments); start += uc.batchSize {
		end := min(start+uc.batchSize, len(segments))
		texts := make([]string, 0, end-start)
		for _, segment := range segments[start:end] {
			texts = append(texts, segment.Text)
		}
		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed segments %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embed segments %d-%d: got %d vectors for %d texts", start, end, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Close drops external resources held by the serving generation.
func (uc *CorpusIndexUseCase) Close(ctx context.Context) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.release(ctx, uc.current.Load())
}

func (uc *CorpusIndexUseCase) release(ctx context.Context, handle *IndexHandle) {
	if handle == nil || handle.Index == nil {
		return
	}
	releaser, ok := handle.Index.(ports.IndexReleaser)
	if !ok {
		return
	}
	if err := releaser.Release(context.WithoutCancel(ctx)); err != nil {
		uc.logger.Warn("release index generation failed", "generation", handle.Status.Generation, "error", err)
	}
}

func (uc *CorpusIndexUseCase) observe(outcome string, started time.Time, status domain.IndexStatus) {
	if uc.observer == nil {
		return
	}
	uc.observer.ObserveRebuild(outcome, time.Since(started), status)
}
