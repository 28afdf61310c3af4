package corpus

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

var (
	errUnsupportedFormat = errors.New("unsupported document format")
	errEmptyDocument     = errors.New("no extractable text")
)

// Source loads every supported file from object storage. Files that cannot be
// decoded are reported as warnings and the rest of the corpus still loads.
type Source struct {
	storage    ports.ObjectStorage
	extractors map[string]ports.TextExtractor
}

// NewSource maps lower-case extensions (".pdf") to extractors.
func NewSource(storage ports.ObjectStorage, extractors map[string]ports.TextExtractor) *Source {
	normalized := make(map[string]ports.TextExtractor, len(extractors))
	for ext, extractor := range extractors {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = extractor
	}
	return &Source{storage: storage, extractors: normalized}
}

func (s *Source) Extensions() []string {
	out := make([]string, 0, len(s.extractors))
	for ext := range s.extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (s *Source) Supports(name string) bool {
	_, ok := s.extractors[strings.ToLower(path.Ext(name))]
	return ok
}

func (s *Source) Load(ctx context.Context) ([]domain.Document, []domain.LoadWarning, error) {
	var (
		warnings []domain.LoadWarning
		partial  *domain.PartialListing
	)
	keys, err := s.storage.List(ctx)
	switch {
	case errors.As(err, &partial):
		warnings = append(warnings, partial.Skipped...)
	case err != nil:
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}

	docs := make([]domain.Document, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := path.Base(key)
		extractor, ok := s.extractors[strings.ToLower(path.Ext(key))]
		if !ok {
			warnings = append(warnings, domain.LoadWarning{Document: name, Err: errUnsupportedFormat})
			continue
		}

		text, err := extractor.Extract(ctx, key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			warnings = append(warnings, domain.LoadWarning{Document: name, Err: err})
			continue
		}
		if strings.TrimSpace(text) == "" {
			warnings = append(warnings, domain.LoadWarning{Document: name, Err: errEmptyDocument})
			continue
		}
		docs = append(docs, domain.Document{Name: name, Path: key, Text: text})
	}
	return docs, warnings, nil
}
