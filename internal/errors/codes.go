// Package errors provides structured error handling for soberano.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and index errors
//   - 3XX: Model and network errors
//   - 4XX: Validation and not-found errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryModel indicates embedding/generation model and network errors.
	CategoryModel Category = "MODEL"
	// CategoryValidation indicates input validation and not-found errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO / index errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeNoIndex       = "ERR_202_NO_INDEX"
	ErrCodeCorruptIndex  = "ERR_203_CORRUPT_INDEX"
	ErrCodeMetaMismatch  = "ERR_204_META_LENGTH_MISMATCH"
	ErrCodePersistFailed = "ERR_205_PERSIST_FAILED"
	ErrCodeWatcherFailed = "ERR_206_WATCHER_FAILED"

	// Model / network errors (300-399)
	ErrCodeEncoderUnavailable   = "ERR_301_ENCODER_UNAVAILABLE"
	ErrCodeGeneratorUnavailable = "ERR_302_GENERATOR_UNAVAILABLE"
	ErrCodeModelTimeout         = "ERR_303_MODEL_TIMEOUT"

	// Validation / not-found errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeUnsupportedType   = "ERR_402_UNSUPPORTED_FILE_TYPE"
	ErrCodeDocumentNotFound  = "ERR_403_DOCUMENT_NOT_FOUND"
	ErrCodeEmptyDocument     = "ERR_404_EMPTY_DOCUMENT"
	ErrCodeRateLimitExceeded = "ERR_405_RATE_LIMIT_EXCEEDED"
	ErrCodeNoResults         = "ERR_406_NO_RESULTS"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeDimensionMismatch = "ERR_502_DIMENSION_MISMATCH"
)

// categoryFromCode derives the category from the error code prefix.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from the error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeMetaMismatch, ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeDocumentNotFound, ErrCodeEmptyDocument, ErrCodeNoResults:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether the operation behind the code may be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeModelTimeout, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}
