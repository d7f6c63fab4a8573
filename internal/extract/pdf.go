package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/segment"
)

// pageSeparator is the form-feed character pdftotext emits between pages.
const pageSeparator = "\f"

// CommandRunner executes an external command and returns its stdout.
// Injectable for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, apperrors.Newf(apperrors.ErrCodeInternal, "%s failed: %s", name, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// PDFReader extracts per-page text from PDF files using pdftotext.
type PDFReader struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewPDFReader creates a PDFReader backed by the pdftotext binary.
func NewPDFReader() *PDFReader {
	return &PDFReader{runner: execRunner{}, lookPath: exec.LookPath}
}

// NewPDFReaderWithRunner creates a PDFReader with a custom runner. The
// binary presence check is skipped since the runner is not required to
// shell out.
func NewPDFReaderWithRunner(r CommandRunner) *PDFReader {
	return &PDFReader{
		runner:   r,
		lookPath: func(name string) (string, error) { return name, nil },
	}
}

// Pages returns the cleaned text of each page of the PDF, in order.
// A missing pdftotext binary is a configuration error, not a per-file one.
func (p *PDFReader) Pages(ctx context.Context, path string) ([]string, error) {
	if _, err := p.lookPath("pdftotext"); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"pdftotext not found in PATH; install poppler-utils to ingest PDFs", err)
	}

	// -layout keeps reading order reasonable for columnar documents.
	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, err
	}

	raw := strings.Split(string(out), pageSeparator)
	pages := make([]string, 0, len(raw))
	for _, pg := range raw {
		pages = append(pages, segment.Clean(pg))
	}
	// pdftotext terminates the last page with a form feed, leaving an
	// empty trailing element.
	if n := len(pages); n > 0 && pages[n-1] == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}
