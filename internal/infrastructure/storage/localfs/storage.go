package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

// Storage exposes a corpus directory as keyed files. Keys are slash-separated
// paths relative to the base directory.
type Storage struct {
	basePath string
}

func New(basePath string) *Storage {
	if basePath == "" {
		basePath = "./data"
	}
	return &Storage{basePath: basePath}
}

func (s *Storage) BasePath() string {
	return s.basePath
}

// List returns every regular, non-hidden file under the base path in lexical
// order. A missing base directory yields an empty list. Unreadable entries
// below the base are skipped and reported through *domain.PartialListing
// alongside the keys that were read.
func (s *Storage) List(ctx context.Context) ([]string, error) {
	var (
		keys    []string
		skipped []domain.LoadWarning
	)
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.basePath {
				if errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			skipped = append(skipped, domain.LoadWarning{Document: s.key(path), Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != s.basePath {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		keys = append(keys, s.key(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list corpus dir: %w", err)
	}
	sort.Strings(keys)
	if len(skipped) > 0 {
		return keys, &domain.PartialListing{Skipped: skipped}
	}
	return keys, nil
}

func (s *Storage) key(path string) string {
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
