package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/store"
)

type recordingIndexer struct {
	mu       sync.Mutex
	ingested [][]string
	deleted  []string
}

func (r *recordingIndexer) IngestFiles(_ context.Context, paths []string) ([]store.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested = append(r.ingested, paths)
	out := make([]store.IngestResult, len(paths))
	for i, p := range paths {
		out[i] = store.IngestResult{Source: filepath.Base(p), Added: 1}
	}
	return out, nil
}

func (r *recordingIndexer) Delete(_ context.Context, source string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, source)
	return 1, nil
}

func (r *recordingIndexer) snapshot() ([][]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ing := make([][]string, len(r.ingested))
	copy(ing, r.ingested)
	del := make([]string, len(r.deleted))
	copy(del, r.deleted)
	return ing, del
}

func TestDebouncerCoalescesSamePath(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add("/docs/a.txt", OpUpsert)
	d.add("/docs/a.txt", OpUpsert)
	d.add("/docs/a.txt", OpUpsert)

	select {
	case batch := <-d.events():
		require.Len(t, batch, 1)
		assert.Equal(t, "/docs/a.txt", batch[0].Path)
		assert.Equal(t, OpUpsert, batch[0].Op)
	case <-time.After(time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncerLatestOpWins(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add("/docs/a.txt", OpUpsert)
	d.add("/docs/a.txt", OpRemove)

	select {
	case batch := <-d.events():
		require.Len(t, batch, 1)
		assert.Equal(t, OpRemove, batch[0].Op)
	case <-time.After(time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncerBatchesDistinctPaths(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add("/docs/a.txt", OpUpsert)
	d.add("/docs/b.txt", OpUpsert)

	select {
	case batch := <-d.events():
		assert.Len(t, batch, 2)
	case <-time.After(time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncerAddAfterStopIsNoop(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	d.stop()
	d.add("/docs/a.txt", OpUpsert)

	_, open := <-d.events()
	assert.False(t, open)
}

func TestWatcherReindexesChangedFile(t *testing.T) {
	dir := t.TempDir()
	idx := &recordingIndexer{}

	w, err := New(dir, idx, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	path := filepath.Join(dir, "nota.md")
	require.NoError(t, os.WriteFile(path, []byte("# Nota\n\nContenido."), 0o644))

	require.Eventually(t, func() bool {
		ing, _ := idx.snapshot()
		return len(ing) == 1
	}, 3*time.Second, 20*time.Millisecond)

	ing, del := idx.snapshot()
	require.Len(t, ing[0], 1)
	assert.Equal(t, path, ing[0][0])
	// Old chunks are purged before the new content goes in.
	assert.Contains(t, del, "nota.md")

	cancel()
	<-done
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "viejo.txt")
	require.NoError(t, os.WriteFile(path, []byte("texto"), 0o644))

	idx := &recordingIndexer{}
	w, err := New(dir, idx, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, del := idx.snapshot()
		for _, s := range del {
			if s == "viejo.txt" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	idx := &recordingIndexer{}
	w, err := New(dir, idx, 30*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "imagen.png"), []byte{0x89}, 0o644))
	time.Sleep(200 * time.Millisecond)

	ing, del := idx.snapshot()
	assert.Empty(t, ing)
	assert.Empty(t, del)

	cancel()
	<-done
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &recordingIndexer{}, 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeWatcherFailed, apperrors.CodeOf(err))
}
