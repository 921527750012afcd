package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeScope             = "SCOPE_ERROR"
	ErrCodeEmptyInput        = "EMPTY_INPUT"
	ErrCodeNotApproved       = "NOT_APPROVED"
	ErrCodeDimension         = "DIMENSION_ERROR"
	ErrCodeDimensionMismatch = "DIMENSION_MISMATCH"
	ErrCodeSynthesis         = "SYNTHESIS_ERROR"
	ErrCodeRetrieval         = "RETRIEVAL_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Extraction errors (local, user-correctable)
var (
	ErrEmptyInput     = NewDomainError(ErrCodeEmptyInput, "input is empty, provide text or select a file")
	ErrSourceNotFound = NewDomainError(ErrCodeNotFound, "source file not found")
)

// Not found errors
var (
	ErrItemNotFound      = NewDomainError(ErrCodeNotFound, "knowledge item not found")
	ErrIngestionNotFound = NewDomainError(ErrCodeNotFound, "ingestion record not found")
	ErrTenantNotFound    = NewDomainError(ErrCodeNotFound, "tenant not found")
	ErrAPIKeyNotFound    = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Scope errors (rejected before any external call)
var (
	ErrScopeRequired = NewDomainError(ErrCodeScope, "tenant code required for tenant scope")
	ErrInvalidScope  = NewDomainError(ErrCodeScope, "invalid scope")
)

// Vector index invariant violations (fatal, never coerced)
var (
	ErrNotApproved       = NewDomainError(ErrCodeNotApproved, "only approved items may be indexed")
	ErrDimension         = NewDomainError(ErrCodeDimension, "embedding has wrong dimensionality")
	ErrDimensionMismatch = NewDomainError(ErrCodeDimensionMismatch, "collection dimensionality does not match configuration, reindex required")
)

// Already exists errors
var (
	ErrTenantAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "tenant already registered")
	ErrVersionConflict     = NewDomainError(ErrCodeAlreadyExists, "item version written concurrently")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// SynthesisError is raised when structured-output synthesis exhausts its
// retries. ValidationErrors carries the field-level messages from the last
// attempt.
type SynthesisError struct {
	Attempts         int
	ValidationErrors []string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("[%s] synthesis failed after %d attempts: %v", ErrCodeSynthesis, e.Attempts, e.ValidationErrors)
}

// NewSynthesisError creates a SynthesisError carrying the last validation errors.
func NewSynthesisError(attempts int, validationErrors []string) *SynthesisError {
	return &SynthesisError{Attempts: attempts, ValidationErrors: validationErrors}
}

// NewRetrievalError wraps an external call failure with an actionable message.
func NewRetrievalError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeRetrieval, message, err)
}
