package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		wantCategory Category
		wantSeverity Severity
		wantRetry    bool
	}{
		{"config error", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"missing index", ErrCodeNoIndex, CategoryIO, SeverityError, false},
		{"meta mismatch is fatal", ErrCodeMetaMismatch, CategoryIO, SeverityFatal, false},
		{"unknown document is a warning", ErrCodeDocumentNotFound, CategoryValidation, SeverityWarning, false},
		{"model timeout is retryable", ErrCodeModelTimeout, CategoryModel, SeverityError, true},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetry, err.Retryable)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestErrorChain(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New(ErrCodePersistFailed, "could not save index", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeDocumentNotFound, "no such doc", nil))

	assert.True(t, IsCode(err, ErrCodeDocumentNotFound))
	assert.False(t, IsCode(err, ErrCodeNoIndex))
	assert.True(t, IsNotFound(err))
	assert.True(t, IsUserError(err))
	assert.Equal(t, ErrCodeDocumentNotFound, CodeOf(err))
}

func TestNoResultsIsNotFoundButDistinct(t *testing.T) {
	err := New(ErrCodeNoResults, "no relevant passages found", nil)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsCode(err, ErrCodeDocumentNotFound))
	assert.Equal(t, SeverityWarning, err.Severity)
	assert.Equal(t, CategoryValidation, err.Category)
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeUnsupportedType, "bad extension", nil).
		WithDetail("extension", ".exe").
		WithDetail("file", "virus.exe")

	assert.Equal(t, ".exe", err.Details["extension"])
	assert.Equal(t, "virus.exe", err.Details["file"])
}
