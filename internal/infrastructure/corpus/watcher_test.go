package corpus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherDebouncesRelevantChanges(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	w := NewWatcher(dir, 100*time.Millisecond,
		func(name string) bool { return strings.HasSuffix(name, ".txt") },
		func(context.Context) error {
			calls.Add(1)
			fired <- struct{}{}
			return nil
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("torque"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected rebuild callback after change")
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected burst to coalesce into one callback, got %d", got)
	}
}

func TestWatcherIgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	w := NewWatcher(dir, 50*time.Millisecond,
		func(name string) bool { return strings.HasSuffix(name, ".pdf") },
		func(context.Context) error {
			calls.Add(1)
			return nil
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".swap.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no callback, got %d", got)
	}
}
