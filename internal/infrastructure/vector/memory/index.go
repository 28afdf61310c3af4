package memory

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

const backendName = "memory"

var errNoEmbeddingFunc = errors.New("index is built from precomputed vectors")

// Builder creates a fresh in-memory chromem database per generation. Nothing
// is persisted; a rebuild re-embeds the corpus.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Backend() string {
	return backendName
}

func (b *Builder) Build(ctx context.Context, generation int64, segments []domain.Segment, vectors [][]float32) (ports.SemanticIndex, error) {
	if len(segments) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build memory index", errors.New("no segments"))
	}
	if len(segments) != len(vectors) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build memory index",
			fmt.Errorf("segments/vectors mismatch: %d != %d", len(segments), len(vectors)))
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(fmt.Sprintf("manuals-%d", generation), nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, len(segments))
	bySeq := make(map[string]domain.Segment, len(segments))
	for i, seg := range segments {
		id := strconv.Itoa(seg.Seq)
		docs[i] = chromem.Document{
			ID:        id,
			Content:   seg.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"document": seg.DocumentName,
				"position": strconv.Itoa(seg.Position),
			},
		}
		bySeq[id] = seg
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	return &Index{collection: collection, segments: bySeq}, nil
}

// Index is a read-only view over one built generation. chromem collections
// are safe for concurrent queries.
type Index struct {
	collection *chromem.Collection
	segments   map[string]domain.Segment
}

func (i *Index) Len() int {
	return i.collection.Count()
}

// Search ranks by cosine similarity and breaks ties by ingestion order. The
// whole collection is scored so ties at the k boundary resolve the same way
// on every call.
func (i *Index) Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievedSegment, error) {
	count := i.collection.Count()
	if k <= 0 || count == 0 {
		return nil, nil
	}

	results, err := i.collection.QueryEmbedding(ctx, queryVector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]domain.RetrievedSegment, 0, len(results))
	for _, r := range results {
		seg, ok := i.segments[r.ID]
		if !ok {
			continue
		}
		out = append(out, domain.RetrievedSegment{
			DocumentName: seg.DocumentName,
			Text:         seg.Text,
			Position:     seg.Position,
			Seq:          seg.Seq,
			Score:        float64(r.Similarity),
		})
	}
	sortBySimilarity(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func sortBySimilarity(segments []domain.RetrievedSegment) {
	sort.SliceStable(segments, func(a, b int) bool {
		if segments[a].Score != segments[b].Score {
			return segments[a].Score > segments[b].Score
		}
		return segments[a].Seq < segments[b].Seq
	})
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}
