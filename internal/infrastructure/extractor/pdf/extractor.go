package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

// Extractor pulls the plain text layer out of PDF repair manuals. Scanned
// PDFs without a text layer decode to an empty string.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, key string) (text string, err error) {
	reader, err := e.storage.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	// The decoder panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrInvalidInput, "extract pdf", fmt.Errorf("%s: %v", key, r))
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf", fmt.Errorf("%s: %w", key, err))
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf", fmt.Errorf("%s: %w", key, err))
	}

	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
