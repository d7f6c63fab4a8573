// Package watcher keeps the index in sync with a documents directory.
// It watches for file changes via fsnotify, debounces bursts, and
// re-ingests or removes documents as they change on disk.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/extract"
	"github.com/soberano/soberano/internal/store"
)

// DefaultDebounce is how long the watcher waits after the last event
// before indexing. Editors often write a file several times per save.
const DefaultDebounce = 2 * time.Second

// Indexer is the subset of the RAG service the watcher drives.
type Indexer interface {
	IngestFiles(ctx context.Context, paths []string) ([]store.IngestResult, error)
	Delete(ctx context.Context, source string) (int, error)
}

// Watcher mirrors one flat documents directory into the index.
type Watcher struct {
	dir      string
	indexer  Indexer
	debounce *debouncer
	fsw      *fsnotify.Watcher
}

// New creates a watcher for dir. debounce <= 0 uses DefaultDebounce.
func New(dir string, indexer Indexer, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeWatcherFailed, "create filesystem watcher", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, apperrors.New(apperrors.ErrCodeWatcherFailed, "watch "+dir, err)
	}
	return &Watcher{
		dir:      dir,
		indexer:  indexer,
		debounce: newDebouncer(debounce),
		fsw:      fsw,
	}, nil
}

// Run watches until ctx is cancelled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	defer w.debounce.stop()

	slog.Info("watching documents directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		case batch, ok := <-w.debounce.events():
			if !ok {
				return nil
			}
			w.apply(ctx, batch)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !extract.Supported(name) {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		// Skip directories named like documents.
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		w.debounce.add(ev.Name, OpUpsert)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.debounce.add(ev.Name, OpRemove)
	}
}

// apply executes one debounced batch against the index.
func (w *Watcher) apply(ctx context.Context, batch []Event) {
	var upserts []string
	for _, ev := range batch {
		switch ev.Op {
		case OpUpsert:
			upserts = append(upserts, ev.Path)
		case OpRemove:
			source := filepath.Base(ev.Path)
			removed, err := w.indexer.Delete(ctx, source)
			if err != nil {
				if !apperrors.IsNotFound(err) {
					slog.Warn("remove document failed", "source", source, "error", err)
				}
				continue
			}
			slog.Info("document removed from index", "source", source, "chunks", removed)
		}
	}

	if len(upserts) == 0 {
		return
	}

	// Re-ingesting a changed file: drop the old chunks first so stale
	// content does not linger next to the new version.
	for _, path := range upserts {
		if _, err := w.indexer.Delete(ctx, filepath.Base(path)); err != nil && !apperrors.IsNotFound(err) {
			slog.Warn("purge before reindex failed", "path", path, "error", err)
		}
	}

	results, err := w.indexer.IngestFiles(ctx, upserts)
	if err != nil {
		slog.Warn("reindex failed", "files", len(upserts), "error", err)
		return
	}
	for _, res := range results {
		slog.Info("document reindexed",
			"source", res.Source, "added", res.Added, "duplicates", res.Duplicates)
	}
}
