package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// VectorIndex is an HNSW graph over chunk embeddings, keyed by chunk
// ordinal. It is a derived cache: when it disagrees with the metadata
// (model change, deletion, corruption) it is thrown away and rebuilt,
// never repaired in place.
type VectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	count   int
	modelID string
}

// vectorSidecar is persisted next to the graph and checked on load.
type vectorSidecar struct {
	Dims    int
	Count   int
	ModelID string
}

// NewVectorIndex creates an empty index for the given model.
func NewVectorIndex(modelID string) *VectorIndex {
	return &VectorIndex{graph: newGraph(), modelID: modelID}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 48
	g.Ml = 0.25
	return g
}

// Add appends vectors for chunks starting at ordinal startOrdinal.
// Vectors must already be unit-normalized. The first Add fixes the
// dimensionality; later mismatches are rejected.
func (v *VectorIndex) Add(startOrdinal int, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dims == 0 {
		v.dims = len(vectors[0])
	}
	for _, vec := range vectors {
		if len(vec) != v.dims {
			return apperrors.Newf(apperrors.ErrCodeDimensionMismatch,
				"vector has %d dimensions, index has %d", len(vec), v.dims)
		}
	}

	for i, vec := range vectors {
		v.graph.Add(hnsw.MakeNode(uint64(startOrdinal+i), vec))
	}
	v.count += len(vectors)
	return nil
}

// Search returns the nearest chunk ordinals with cosine similarity
// scores in [0,1], best first.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.count == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != v.dims {
		return nil, apperrors.Newf(apperrors.ErrCodeDimensionMismatch,
			"query has %d dimensions, index has %d", len(query), v.dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodes := v.graph.Search(query, min(k, v.count))
	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		// Cosine distance is in [0,2]; map to similarity in [0,1].
		dist := v.graph.Distance(query, n.Value)
		hits = append(hits, Hit{
			Ordinal: int(n.Key),
			Score:   1.0 - float64(dist)/2.0,
		})
	}
	return hits, nil
}

// Count returns the number of indexed vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}

// Dimensions returns the vector size, 0 while empty.
func (v *VectorIndex) Dimensions() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dims
}

// ModelID returns the embedding model the vectors came from.
func (v *VectorIndex) ModelID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.modelID
}

// Reset discards all vectors, keeping the model id.
func (v *VectorIndex) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = newGraph()
	v.dims = 0
	v.count = 0
}

// Save writes the graph and its sidecar atomically (temp file plus
// rename).
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if err := v.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	return v.saveSidecar(path + ".meta")
}

func (v *VectorIndex) saveSidecar(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	sc := vectorSidecar{Dims: v.dims, Count: v.count, ModelID: v.modelID}
	if err := gob.NewEncoder(f).Encode(sc); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	return nil
}

// Load reads a saved graph. The sidecar's model id and count are
// validated by the caller against the metadata store; Load only checks
// that the files decode.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var sc vectorSidecar
	mf, err := os.Open(path + ".meta")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}
	err = gob.NewDecoder(mf).Decode(&sc)
	mf.Close()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}
	defer f.Close()

	g := newGraph()
	// coder/hnsw Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}

	v.graph = g
	v.dims = sc.Dims
	v.count = sc.Count
	v.modelID = sc.ModelID
	return nil
}

// SidecarModelID reads just the persisted sidecar, without importing
// the graph. Returns empty values when no index exists on disk.
func SidecarModelID(path string) (modelID string, count int, err error) {
	f, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}
	defer f.Close()

	var sc vectorSidecar
	if err := gob.NewDecoder(f).Decode(&sc); err != nil {
		return "", 0, apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}
	return sc.ModelID, sc.Count, nil
}
