// Package local provides an offline embedder based on feature hashing. It
// needs no model server, so it backs tests and air-gapped deployments; its
// recall is lexical rather than semantic.
package local

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const DefaultDimensions = 256

type Embedder struct {
	dims int
}

func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Name() string {
	return fmt.Sprintf("local-hash-%d", e.dims)
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// vector hashes words and character trigrams into signed buckets and
// L2-normalizes the result. It never returns the zero vector.
func (e *Embedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		e.add(vec, "w:"+token, 1.0)
		runes := []rune(token)
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (e *Embedder) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(e.dims))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
