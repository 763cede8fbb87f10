package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrQuotaExceeded       = NewDomainError("QUOTA_EXCEEDED", "Daily usage quota exceeded")
	ErrZeroLimitTier       = NewDomainError("ZERO_LIMIT_TIER", "Tier defines a zero daily limit")
	ErrProviderRejected    = NewDomainError("PROVIDER_REJECTED", "External provider rejected the request")
	ErrProviderTimeout     = NewDomainError("PROVIDER_TIMEOUT", "External provider did not respond in time")
	ErrPublishFailed       = NewDomainError("PUBLISH_FAILED", "Failed to publish to the stream transport")
	ErrAmountMismatch      = NewDomainError("AMOUNT_MISMATCH", "Submitted amount does not match the quoted total")
)
