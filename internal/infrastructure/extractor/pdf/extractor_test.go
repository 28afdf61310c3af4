package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/storage/localfs"
)

func TestExtractRejectsNonPDF(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("plain text pretending to be a pdf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewExtractor(localfs.New(dir)).Extract(context.Background(), "broken.pdf")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, err := NewExtractor(localfs.New(t.TempDir())).Extract(context.Background(), "absent.pdf")
	if err == nil {
		t.Fatalf("expected open error")
	}
}
