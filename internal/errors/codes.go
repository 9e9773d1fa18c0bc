// Package errors provides structured error handling for Quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (sqlite, index files)
//   - 3XX: Source/backend errors (semantic service, reranker, embedder)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates storage and index I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategorySource indicates retrieval backend errors.
	CategorySource Category = "SOURCE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Configuration errors (1XX)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	// Storage errors (2XX)
	ErrCodeStoreOpen            = "ERR_201_STORE_OPEN"
	ErrCodeStoreLocked          = "ERR_202_STORE_LOCKED"
	ErrCodePatternNotFound      = "ERR_203_PATTERN_NOT_FOUND"
	ErrCodeReinforceConflict    = "ERR_204_REINFORCE_CONFLICT"
	ErrCodeStoreCorrupt         = "ERR_205_STORE_CORRUPT"

	// Source/backend errors (3XX)
	ErrCodeSourceTimeout    = "ERR_301_SOURCE_TIMEOUT"
	ErrCodeSourceError      = "ERR_302_SOURCE_ERROR"
	ErrCodeAllSourcesFailed = "ERR_303_ALL_SOURCES_FAILED"
	ErrCodeEmbedUnavailable = "ERR_304_EMBED_UNAVAILABLE"
	ErrCodeRerankFailed     = "ERR_305_RERANK_FAILED"

	// Validation errors (4XX)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeEmptyQuery   = "ERR_402_EMPTY_QUERY"

	// Internal errors (5XX)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode derives the category from the numeric range in the code.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategorySource
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from the code.
// Source-level failures are warnings: the request degrades rather than aborts.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeSourceTimeout, ErrCodeSourceError, ErrCodeRerankFailed:
		return SeverityWarning
	case ErrCodeStoreCorrupt, ErrCodeStoreOpen:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSourceTimeout, ErrCodeSourceError, ErrCodeReinforceConflict,
		ErrCodeEmbedUnavailable, ErrCodeRerankFailed:
		return true
	default:
		return false
	}
}
