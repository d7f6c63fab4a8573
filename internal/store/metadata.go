package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// MetaFileName is the metadata file inside the index directory.
const MetaFileName = "meta.json"

// Metadata is the persistent source of truth for the index: parallel
// arrays of chunk text, source and page, plus the embedding model that
// produced the vectors. Both search indexes are derived from it.
type Metadata struct {
	ModelID string   `json:"embedding_model"`
	Texts   []string `json:"chunks"`
	Sources []string `json:"sources"`
	Pages   []int    `json:"pages"`
}

// Len returns the number of chunks.
func (m *Metadata) Len() int {
	return len(m.Texts)
}

// Chunk materializes the chunk at ordinal i.
func (m *Metadata) Chunk(i int) Chunk {
	return Chunk{Text: m.Texts[i], Source: m.Sources[i], Page: m.Pages[i]}
}

// Append adds chunks to the end of the arrays.
func (m *Metadata) Append(chunks []Chunk) {
	for _, c := range chunks {
		m.Texts = append(m.Texts, c.Text)
		m.Sources = append(m.Sources, c.Source)
		m.Pages = append(m.Pages, c.Page)
	}
}

// Validate checks the parallel-array invariant. A length mismatch
// means the file was corrupted or hand-edited; the index cannot be
// trusted and must be rebuilt from the documents.
func (m *Metadata) Validate() error {
	if len(m.Sources) != len(m.Texts) || len(m.Pages) != len(m.Texts) {
		return apperrors.Newf(apperrors.ErrCodeMetaMismatch,
			"metadata arrays out of sync: %d texts, %d sources, %d pages",
			len(m.Texts), len(m.Sources), len(m.Pages))
	}
	return nil
}

// Keys returns the dedup key of every chunk, in ordinal order.
func (m *Metadata) Keys() map[string]bool {
	keys := make(map[string]bool, m.Len())
	for i := 0; i < m.Len(); i++ {
		keys[m.Chunk(i).Key()] = true
	}
	return keys
}

// SourceSet returns the distinct source names present in the index.
func (m *Metadata) SourceSet() map[string]int {
	set := make(map[string]int)
	for _, s := range m.Sources {
		set[s]++
	}
	return set
}

// WithoutSource returns a copy with every chunk of the named source
// removed, plus the number of chunks dropped.
func (m *Metadata) WithoutSource(source string) (*Metadata, int) {
	out := &Metadata{ModelID: m.ModelID}
	removed := 0
	for i := 0; i < m.Len(); i++ {
		if m.Sources[i] == source {
			removed++
			continue
		}
		out.Texts = append(out.Texts, m.Texts[i])
		out.Sources = append(out.Sources, m.Sources[i])
		out.Pages = append(out.Pages, m.Pages[i])
	}
	return out, removed
}

// SaveMetadata writes metadata atomically into dir.
func SaveMetadata(dir string, m *Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	path := filepath.Join(dir, MetaFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	return nil
}

// LoadMetadata reads and validates metadata from dir. A missing file
// is reported as ErrCodeNoIndex.
func LoadMetadata(dir string) (*Metadata, error) {
	path := filepath.Join(dir, MetaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrCodeNoIndex, "no index at %s", dir)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
