package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

func segment(seq int, doc, text string) domain.Segment {
	return domain.Segment{DocumentName: doc, Text: text, Seq: seq, Position: seq}
}

func TestSearchReturnsTopKBySimilarity(t *testing.T) {
	ctx := context.Background()
	segments := []domain.Segment{
		segment(0, "bumper.txt", "bumper"),
		segment(1, "glass.txt", "glass"),
		segment(2, "paint.txt", "paint"),
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.8, 0.6, 0}}

	index, err := NewBuilder().Build(ctx, 1, segments, vectors)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if index.Len() != 3 {
		t.Fatalf("expected 3 segments, got %d", index.Len())
	}

	got, err := index.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got) != 2 || got[0].DocumentName != "bumper.txt" || got[1].DocumentName != "paint.txt" {
		t.Fatalf("unexpected ranking: %+v", got)
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("expected descending scores: %+v", got)
	}
}

func TestSearchBreaksTiesByIngestionOrder(t *testing.T) {
	ctx := context.Background()
	segments := []domain.Segment{
		segment(0, "a.txt", "first"),
		segment(1, "b.txt", "second"),
		segment(2, "c.txt", "third"),
		segment(3, "d.txt", "other"),
	}
	same := []float32{0, 1, 0}
	vectors := [][]float32{same, same, same, {1, 0, 0}}

	index, err := NewBuilder().Build(ctx, 7, segments, vectors)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	for run := 0; run < 5; run++ {
		got, err := index.Search(ctx, []float32{0, 1, 0}, 2)
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if len(got) != 2 || got[0].Seq != 0 || got[1].Seq != 1 {
			t.Fatalf("run %d: expected seq 0,1 got %+v", run, got)
		}
	}
}

func TestSearchClampsKToCollectionSize(t *testing.T) {
	ctx := context.Background()
	index, err := NewBuilder().Build(ctx, 1, []domain.Segment{segment(0, "a.txt", "only")}, [][]float32{{1, 0}})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	got, err := index.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
}

func TestBuildRejectsMismatchedInput(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), 1, []domain.Segment{segment(0, "a.txt", "x")}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	_, err = NewBuilder().Build(context.Background(), 1, nil, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty build, got %v", err)
	}
}
