// Package extract turns uploaded files into cleaned plain text chunks.
// PDF pages are extracted with the pdftotext tool, Markdown is stripped
// to plain text, and everything else is read as UTF-8 text.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/segment"
	"github.com/soberano/soberano/internal/store"
)

// SupportedExtensions lists the file extensions accepted for ingestion.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// Supported reports whether the file extension is ingestible.
func Supported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extractor produces chunks from files.
type Extractor struct {
	segmenter *segment.Segmenter
	pdf       *PDFReader
}

// New creates an Extractor using the given segmenter.
func New(seg *segment.Segmenter) *Extractor {
	return &Extractor{
		segmenter: seg,
		pdf:       NewPDFReader(),
	}
}

// File extracts all chunks from one file. The chunk source is the file's
// base name; pages are 1-based (page 1 for non-paginated formats).
// Unsupported extensions and files with zero extractable text are
// reported as errors, never silently skipped.
func (e *Extractor) File(ctx context.Context, path string) ([]store.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return nil, apperrors.Newf(apperrors.ErrCodeUnsupportedType, "unsupported file type %q", ext).
			WithDetail("file", filepath.Base(path))
	}

	source := filepath.Base(path)
	var chunks []store.Chunk

	switch ext {
	case ".pdf":
		pages, err := e.pdf.Pages(ctx, path)
		if err != nil {
			return nil, err
		}
		pages = segment.StripHeadersFooters(pages)
		for pageNo, pageText := range pages {
			for _, c := range e.segmenter.Chunk(pageText) {
				chunks = append(chunks, store.Chunk{Text: c, Source: source, Page: pageNo + 1})
			}
		}

	case ".md", ".markdown":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err)
		}
		text := StripMarkdown(string(raw))
		for _, c := range e.segmenter.Chunk(text) {
			chunks = append(chunks, store.Chunk{Text: c, Source: source, Page: 1})
		}

	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err)
		}
		for _, c := range e.segmenter.Chunk(string(raw)) {
			chunks = append(chunks, store.Chunk{Text: c, Source: source, Page: 1})
		}
	}

	if len(chunks) == 0 {
		return nil, apperrors.Newf(apperrors.ErrCodeEmptyDocument, "no extractable text in %s", source).
			WithDetail("file", source)
	}
	return chunks, nil
}

// ListFiles enumerates supported files directly under dir, sorted by name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if Supported(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
