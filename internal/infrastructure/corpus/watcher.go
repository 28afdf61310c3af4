package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a callback once the corpus directory has been quiet for
// the debounce interval after a relevant change.
type Watcher struct {
	dir      string
	debounce time.Duration
	relevant func(name string) bool
	onChange func(ctx context.Context) error
	logger   *slog.Logger
}

func NewWatcher(
	dir string,
	debounce time.Duration,
	relevant func(name string) bool,
	onChange func(ctx context.Context) error,
	logger *slog.Logger,
) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if relevant == nil {
		relevant = func(string) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		relevant: relevant,
		onChange: onChange,
		logger:   logger,
	}
}

// Start registers the watches synchronously and processes events in the
// background until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		_ = fw.Close()
		return fmt.Errorf("create corpus dir: %w", err)
	}
	if err := w.addTree(fw, w.dir); err != nil {
		_ = fw.Close()
		return err
	}

	w.logger.Info("corpus watcher started", "dir", w.dir, "debounce", w.debounce.String())
	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	// nil until a relevant change arrives; each change pushes the deadline out.
	var quiet <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if w.handle(fw, event) {
				quiet = time.After(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("corpus watch error", "error", err)
		case <-quiet:
			quiet = nil
			w.logger.Info("corpus changed, rebuilding index", "dir", w.dir)
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("corpus rebuild after change failed", "error", err)
			}
		}
	}
}

// handle reports whether the event should schedule a rebuild.
func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Warn("watch new corpus dir", "dir", event.Name, "error", err)
			}
			return true
		}
	}
	return w.relevant(base)
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
