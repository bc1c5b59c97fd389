package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/compozy/docqa/pkg/logger"
)

// Watcher re-ingests files under a folder when they change. Bursts of events
// for the same file are collapsed into one run after the debounce delay.
type Watcher struct {
	pipeline *Pipeline
	folder   string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	flushCh chan struct{}
}

func NewWatcher(pipeline *Pipeline, folder string, debounce time.Duration) (*Watcher, error) {
	if pipeline == nil {
		return nil, errors.New("ingest: pipeline is required")
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve %q: %w", folder, err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		pipeline: pipeline,
		folder:   abs,
		debounce: debounce,
		pending:  make(map[string]struct{}),
		flushCh:  make(chan struct{}, 1),
	}, nil
}

// Run blocks until ctx is canceled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()
	dirs, err := w.addTree(fw, w.folder, false)
	if err != nil {
		return err
	}
	log.Info("Watching corpus folder", "folder", w.folder, "directories", dirs, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("File watcher error", "error", err)
		case <-w.flushCh:
			w.flush(ctx)
		}
	}
}

// addTree watches root and every directory below it. With enqueue set, files
// already present are scheduled too: they may have landed before the watch on
// their directory was in place.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string, enqueue bool) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if enqueue && w.matches(path) {
				w.schedule(path)
			}
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("ingest: watch %q: %w", path, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("ingest: walk %q: %w", root, err)
	}
	return count, nil
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, err := w.addTree(fw, event.Name, true); err != nil {
				logger.FromContext(ctx).Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.matches(event.Name) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) matches(path string) bool {
	if !w.pipeline.reader.Supports(path) {
		return false
	}
	rel, err := filepath.Rel(w.folder, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.pipeline.options.Patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := w.pipeline.RemoveFile(ctx, path); err != nil {
				logger.FromContext(ctx).Error("Failed to remove document", "file", path, "error", err)
			}
			continue
		}
		w.pipeline.IngestFile(ctx, path)
	}
}
