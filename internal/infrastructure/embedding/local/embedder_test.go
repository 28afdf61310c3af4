package local

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	e := New(128)
	vecs, err := e.Embed(context.Background(), []string{"Replace the front bumper cover", "Replace the front bumper cover"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vecs[0]) != 128 {
		t.Fatalf("expected 128 dimensions, got %d", len(vecs[0]))
	}
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			t.Fatalf("expected identical vectors for identical text")
		}
	}
	if n := cosine(vecs[0], vecs[0]); math.Abs(n-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %f", n)
	}
}

func TestEmbedQueryRanksLexicalOverlapHigher(t *testing.T) {
	e := New(DefaultDimensions)
	ctx := context.Background()
	docs, _ := e.Embed(ctx, []string{
		"Bumper cover removal: release the fascia clips and retainers.",
		"Windshield urethane cure time depends on humidity.",
	})
	query, _ := e.EmbedQuery(ctx, "how to remove a bumper cover")

	if cosine(query, docs[0]) <= cosine(query, docs[1]) {
		t.Fatalf("expected bumper passage to score higher")
	}
}

func TestEmbedNeverReturnsZeroVector(t *testing.T) {
	vec, err := New(16).EmbedQuery(context.Background(), "  !!! ")
	if err != nil {
		t.Fatalf("EmbedQuery() error: %v", err)
	}
	if cosine(vec, vec) == 0 {
		t.Fatalf("expected non-zero vector for punctuation-only text")
	}
}

func TestEmbedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(8).Embed(ctx, []string{"x"}); err == nil {
		t.Fatalf("expected context error")
	}
}
