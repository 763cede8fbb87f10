package dto

import "net/http"

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Identity error codes
const (
	// ErrCodeUnauthorized is used when the caller identity is missing
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when the transport rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// domainCodeHTTPStatus maps domain error codes to HTTP status codes.
// Codes absent from the map fall back to 500.
var domainCodeHTTPStatus = map[string]int{
	// Lookups
	"NOT_FOUND":            http.StatusNotFound,
	"AGENT_NOT_FOUND":      http.StatusNotFound,
	"TIER_NOT_FOUND":       http.StatusNotFound,
	"SETTLEMENT_NOT_FOUND": http.StatusNotFound,

	// Conflicts
	"ALREADY_EXISTS":       http.StatusConflict,
	"CONCURRENCY_CONFLICT": http.StatusConflict,

	// Malformed input
	"INVALID_INPUT":        http.StatusBadRequest,
	"INVALID_AGENT":        http.StatusBadRequest,
	"INVALID_AGENT_NAME":   http.StatusBadRequest,
	"INVALID_BUYER":        http.StatusBadRequest,
	"INVALID_TIER":         http.StatusBadRequest,
	"INVALID_TIER_CODE":    http.StatusBadRequest,
	"INVALID_TIER_NAME":    http.StatusBadRequest,
	"INVALID_PRICE":        http.StatusBadRequest,
	"INVALID_PRICE_MODEL":  http.StatusBadRequest,
	"INVALID_LIMIT":        http.StatusBadRequest,
	"INVALID_AMOUNT":       http.StatusBadRequest,
	"INVALID_TX_REF":       http.StatusBadRequest,
	"INVALID_PROMPT":       http.StatusBadRequest,
	"INVALID_DAY_KEY":      http.StatusBadRequest,
	"INVALID_TOPIC":        http.StatusBadRequest,
	"INVALID_EVENT_TYPE":   http.StatusBadRequest,
	"INVALID_FAILURE_CODE": http.StatusBadRequest,

	// Business rule violations
	"INVALID_STATE":   http.StatusUnprocessableEntity,
	"AMOUNT_MISMATCH": http.StatusUnprocessableEntity,

	// Access denials
	"QUOTA_EXCEEDED":  http.StatusForbidden,
	"ZERO_LIMIT_TIER": http.StatusForbidden,
	"AGENT_DISABLED":  http.StatusForbidden,

	// Upstream provider outcomes
	"PROVIDER_REJECTED": http.StatusUnprocessableEntity,
	"PROVIDER_TIMEOUT":  http.StatusGatewayTimeout,
	"PUBLISH_FAILED":    http.StatusInternalServerError,

	// Transport-level codes
	ErrCodeUnknown:       http.StatusInternalServerError,
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeInvalidJSON:   http.StatusBadRequest,
	ErrCodeUnauthorized:  http.StatusUnauthorized,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeRateLimited:   http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := domainCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
