package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/soberano/soberano/internal/embed"
	apperrors "github.com/soberano/soberano/internal/errors"
)

const (
	// VectorFileName is the persisted HNSW graph inside the index dir.
	VectorFileName = "vectors.hnsw"

	// lockFileName guards the index dir against concurrent processes.
	lockFileName = ".lock"
)

// Store owns the index directory: chunk metadata, the vector index and
// the lexical index. All mutation goes through Store under a single
// writer lock; an OS file lock additionally keeps a second process from
// writing the same directory.
type Store struct {
	dir     string
	encoder embed.Encoder
	flk     *flock.Flock

	mu      sync.RWMutex
	meta    *Metadata
	vectors *VectorIndex
	lexical *LexicalIndex
}

// Open loads the index at dir, creating an empty one if none exists.
// When the persisted vectors disagree with the metadata (different
// embedding model, different count, corrupt files) they are rebuilt
// from the metadata by re-embedding, since metadata is the source of
// truth and the vector index is disposable.
func Open(ctx context.Context, dir string, encoder embed.Encoder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	flk := flock.New(filepath.Join(dir, lockFileName))
	locked, err := flk.TryLock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if !locked {
		return nil, apperrors.Newf(apperrors.ErrCodePersistFailed,
			"index at %s is locked by another process", dir)
	}

	meta, err := LoadMetadata(dir)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNoIndex) {
			meta = &Metadata{ModelID: encoder.ModelID()}
		} else {
			flk.Unlock()
			return nil, err
		}
	}

	lex, err := NewLexicalIndex()
	if err != nil {
		flk.Unlock()
		return nil, err
	}

	s := &Store{
		dir:     dir,
		encoder: encoder,
		flk:     flk,
		meta:    meta,
		vectors: NewVectorIndex(encoder.ModelID()),
		lexical: lex,
	}

	if err := s.restoreVectors(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.lexical.Rebuild(ctx, s.meta.Texts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// restoreVectors loads the persisted vector index if it matches the
// metadata, otherwise rebuilds it by re-embedding every chunk.
func (s *Store) restoreVectors(ctx context.Context) error {
	if s.meta.Len() == 0 {
		return nil
	}

	path := filepath.Join(s.dir, VectorFileName)
	modelID, count, err := SidecarModelID(path)
	switch {
	case err != nil:
		slog.Warn("vector sidecar unreadable, rebuilding", "path", path, "error", err)
	case modelID != s.encoder.ModelID():
		slog.Info("embedding model changed, rebuilding vectors",
			"stored", modelID, "configured", s.encoder.ModelID())
	case count != s.meta.Len():
		slog.Warn("vector count out of sync with metadata, rebuilding",
			"vectors", count, "chunks", s.meta.Len())
	default:
		loadErr := s.vectors.Load(path)
		if loadErr == nil {
			return nil
		}
		slog.Warn("vector index unreadable, rebuilding", "path", path, "error", loadErr)
	}

	return s.rebuildVectorsLocked(ctx)
}

// rebuildVectorsLocked re-embeds every chunk and replaces the vector
// index. Caller must hold the write lock (or be in Open, before the
// store is shared).
func (s *Store) rebuildVectorsLocked(ctx context.Context) error {
	s.vectors = NewVectorIndex(s.encoder.ModelID())
	if s.meta.Len() == 0 {
		s.meta.ModelID = s.encoder.ModelID()
		return nil
	}

	slog.Info("rebuilding vector index", "chunks", s.meta.Len())
	vecs, err := s.encoder.EmbedDocuments(ctx, s.meta.Texts)
	if err != nil {
		return err
	}
	if err := s.vectors.Add(0, vecs); err != nil {
		return err
	}
	s.meta.ModelID = s.encoder.ModelID()
	if err := s.vectors.Save(filepath.Join(s.dir, VectorFileName)); err != nil {
		return err
	}
	return SaveMetadata(s.dir, s.meta)
}

// Ingest adds chunks to the index. Duplicates, both against the index
// and within the batch, are skipped. A changed embedding model forces
// a full rebuild so every vector in the index comes from one model.
func (s *Store) Ingest(ctx context.Context, chunks []Chunk) (*IngestResult, error) {
	if len(chunks) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "no chunks to ingest", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.meta.Keys()
	fresh := make([]Chunk, 0, len(chunks))
	dups := 0
	for _, c := range chunks {
		k := c.Key()
		if seen[k] {
			dups++
			continue
		}
		seen[k] = true
		fresh = append(fresh, c)
	}

	res := &IngestResult{
		Source:     chunks[0].Source,
		Added:      len(fresh),
		Duplicates: dups,
	}

	rebuilt := s.meta.Len() > 0 && s.meta.ModelID != s.encoder.ModelID()
	res.Rebuilt = rebuilt

	if len(fresh) == 0 && !rebuilt {
		res.Total = s.meta.Len()
		slog.Info("ingest skipped, all chunks already indexed",
			"source", res.Source, "duplicates", dups)
		return res, nil
	}

	start := s.meta.Len()
	s.meta.Append(fresh)

	if rebuilt {
		if err := s.rebuildVectorsLocked(ctx); err != nil {
			return nil, err
		}
	} else if len(fresh) > 0 {
		texts := make([]string, len(fresh))
		for i, c := range fresh {
			texts[i] = c.Text
		}
		vecs, err := s.encoder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if err := s.vectors.Add(start, vecs); err != nil {
			return nil, err
		}
	}

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}

	res.Total = s.meta.Len()
	slog.Info("ingest complete", "source", res.Source,
		"added", res.Added, "duplicates", res.Duplicates,
		"total", res.Total, "rebuilt", res.Rebuilt)
	return res, nil
}

// DeleteSource removes every chunk of the named document. The vector
// index is rebuilt from the surviving chunks; HNSW graphs do not shrink
// well in place.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, removed := s.meta.WithoutSource(source)
	if removed == 0 {
		return 0, apperrors.Newf(apperrors.ErrCodeDocumentNotFound,
			"document %q not in index", source)
	}

	s.meta = meta
	if err := s.rebuildVectorsLocked(ctx); err != nil {
		return 0, err
	}
	if err := s.persistLocked(ctx); err != nil {
		return 0, err
	}

	slog.Info("document deleted", "source", source,
		"chunks_removed", removed, "remaining", s.meta.Len())
	return removed, nil
}

// persistLocked writes metadata and vectors and refreshes the lexical
// index. Caller must hold the write lock.
func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.meta.Validate(); err != nil {
		return err
	}
	if err := SaveMetadata(s.dir, s.meta); err != nil {
		return err
	}
	if err := s.vectors.Save(filepath.Join(s.dir, VectorFileName)); err != nil {
		return err
	}
	return s.lexical.Rebuild(ctx, s.meta.Texts)
}

// Dense returns the nearest chunks to the query embedding.
func (s *Store) Dense(ctx context.Context, query []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectors.Search(ctx, query, k)
}

// Lexical returns the best BM25 matches for the query text.
func (s *Store) Lexical(ctx context.Context, query string, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lexical.TopK(ctx, query, k)
}

// Chunk returns the chunk at ordinal i.
func (s *Store) Chunk(i int) Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Chunk(i)
}

// Len returns the number of indexed chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Len()
}

// ModelID returns the embedding model recorded in the metadata.
func (s *Store) ModelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.ModelID
}

// Sources returns the indexed document names with chunk counts, sorted
// by name.
func (s *Store) Sources() []SourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.meta.SourceSet()
	out := make([]SourceInfo, 0, len(set))
	for name, n := range set {
		out = append(out, SourceInfo{Name: name, Chunks: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OrdinalsFor returns the ordinals of every chunk of the named source,
// in order.
func (s *Store) OrdinalsFor(source string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int
	for i, src := range s.meta.Sources {
		if src == source {
			out = append(out, i)
		}
	}
	return out
}

// Close releases the lexical index and the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.lexical.Close()
	if unlockErr := s.flk.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// SourceInfo describes one indexed document.
type SourceInfo struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}
