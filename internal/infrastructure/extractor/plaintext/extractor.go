package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

// Extractor reads .txt and .md manuals as UTF-8 text.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, key string) (string, error) {
	reader, err := e.storage.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract plaintext", fmt.Errorf("%s is not valid UTF-8", key))
	}

	text := strings.TrimPrefix(string(raw), "\ufeff")
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")), nil
}
