package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

const (
	defaultTopK      = 5
	contextSeparator = "\n---\n"
)

type RetrieveUseCase struct {
	indexes  IndexView
	defaultK int
}

func NewRetrieveUseCase(indexes IndexView, defaultK int) *RetrieveUseCase {
	if defaultK <= 0 {
		defaultK = defaultTopK
	}
	return &RetrieveUseCase{indexes: indexes, defaultK: defaultK}
}

// Search returns the top-k segments for query joined into a single context
// block. An absent index yields an empty result, not an error.
func (uc *RetrieveUseCase) Search(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "search manuals", fmt.Errorf("query is required"))
	}
	if k <= 0 {
		k = uc.defaultK
	}

	handle := uc.indexes.Current()
	if handle.Index == nil || handle.Index.Len() == 0 {
		return domain.RetrievalResult{Sources: []string{}, IndexState: domain.IndexAbsent}, nil
	}

	queryVector, err := handle.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("embed query: %w", err)
	}

	segments, err := handle.Index.Search(ctx, queryVector, k)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("search index: %w", err)
	}

	texts := make([]string, 0, len(segments))
	sources := make([]string, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))
	for _, segment := range segments {
		texts = append(texts, segment.Text)
		name := filepath.Base(segment.DocumentName)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
	}

	return domain.RetrievalResult{
		Context:    strings.Join(texts, contextSeparator),
		Sources:    sources,
		Segments:   segments,
		IndexState: domain.IndexReady,
	}, nil
}
