// Package errors provides structured error handling for shardsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index store errors
//   - 3XX: Shard errors (network, timeout, malformed response)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates index store lookup errors.
	CategoryStore Category = "STORE"
	// CategoryShard indicates a shard could not produce a partial result.
	CategoryShard Category = "SHARD"
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
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreNotFound = "ERR_201_STORE_NOT_FOUND"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"
	ErrCodeStoreQuery    = "ERR_206_STORE_QUERY"

	// Shard errors (300-399)
	ErrCodeShardTimeout     = "ERR_301_SHARD_TIMEOUT"
	ErrCodeShardUnavailable = "ERR_302_SHARD_UNAVAILABLE"
	ErrCodeShardBadResponse = "ERR_303_SHARD_BAD_RESPONSE"
	ErrCodeShardServerError = "ERR_304_SHARD_SERVER_ERROR"
	ErrCodeCircuitOpen      = "ERR_305_CIRCUIT_OPEN"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"
	ErrCodePatternEmpty = "ERR_407_PATTERN_EMPTY"
	ErrCodeInvalidLimit = "ERR_408_INVALID_LIMIT"
	ErrCodeRateLimited  = "ERR_429_RATE_LIMITED"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "301" from "ERR_301_SHARD_TIMEOUT"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryShard
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	}

	// A failed shard degrades the answer but never fails the request.
	if categoryFromCode(code) == CategoryShard {
		return SeverityWarning
	}

	return SeverityError
}
