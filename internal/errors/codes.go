// Package errors provides structured error handling for Keeprag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store and data errors
//   - 3XX: Model service (network) errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates persistence and data errors.
	CategoryStore Category = "STORE"
	// CategoryModel indicates external model service errors.
	CategoryModel Category = "MODEL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store and data errors (200-299)
	ErrCodeStoreOpen       = "ERR_201_STORE_OPEN"
	ErrCodeStoreCorrupt    = "ERR_202_STORE_CORRUPT"
	ErrCodeSectionNotFound = "ERR_203_SECTION_NOT_FOUND"
	ErrCodeJobNotFound     = "ERR_204_JOB_NOT_FOUND"

	// Model service errors (300-399), retryable
	ErrCodeModelUnavailable = "ERR_301_MODEL_UNAVAILABLE"
	ErrCodeEmbedFailed      = "ERR_302_EMBED_FAILED"
	ErrCodeGenerateFailed   = "ERR_303_GENERATE_FAILED"
	ErrCodeEmptyVector      = "ERR_304_EMPTY_VECTOR"

	// Validation errors (400-499)
	ErrCodeQuestionEmpty     = "ERR_401_QUESTION_EMPTY"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidMode       = "ERR_403_INVALID_MODE"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract the leading digit of the numeric portion
	// (e.g., "1" from "ERR_101_CONFIG_NOT_FOUND").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// isRetryableCode checks if an error code represents a retryable error.
// Model service errors are transient by taxonomy; everything else is not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeModelUnavailable, ErrCodeEmbedFailed, ErrCodeGenerateFailed, ErrCodeEmptyVector:
		return true
	default:
		return false
	}
}
