package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// Error types for different categories of failures
type ErrorType string

const (
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeCollection        ErrorType = "collection"
	ErrorTypeTransactionCreate ErrorType = "transaction_create"
	ErrorTypeBatchUpsert       ErrorType = "batch_upsert"
	ErrorTypeTransactionCommit ErrorType = "transaction_commit"
	ErrorTypeTransactionAbort  ErrorType = "transaction_abort"
	ErrorTypeSearch            ErrorType = "search"
	ErrorTypeDataset           ErrorType = "dataset"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeConfiguration     ErrorType = "configuration"
	ErrorTypeNetwork           ErrorType = "network"
)

// Sentinels matching any StructuredError of the same type through errors.Is.
var (
	ErrAuth              = &StructuredError{Type: ErrorTypeAuth}
	ErrCollection        = &StructuredError{Type: ErrorTypeCollection}
	ErrTransactionCreate = &StructuredError{Type: ErrorTypeTransactionCreate}
	ErrBatchUpsert       = &StructuredError{Type: ErrorTypeBatchUpsert}
	ErrTransactionCommit = &StructuredError{Type: ErrorTypeTransactionCommit}
	ErrTransactionAbort  = &StructuredError{Type: ErrorTypeTransactionAbort}
	ErrSearch            = &StructuredError{Type: ErrorTypeSearch}
	ErrDataset           = &StructuredError{Type: ErrorTypeDataset}
	ErrValidation        = &StructuredError{Type: ErrorTypeValidation}
	ErrNetwork           = &StructuredError{Type: ErrorTypeNetwork}
)

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	// StatusCode is the HTTP status returned by the server, 0 when no response was received.
	StatusCode int
	Cause      error
	Context    map[string]interface{}
	Stack      []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a bare sentinel of the same type.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	if t.Operation != "" || t.Message != "" {
		return e == t
	}
	return e.Type == t.Type
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}

	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithStatus records the HTTP status code of the failed call.
func (e *StructuredError) WithStatus(code int) *StructuredError {
	e.StatusCode = code
	return e
}

// captureStack captures the current stack trace
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // skip runtime.Callers, captureStack and the constructor
	return pcs[:n]
}

// BatchUpsertError reports one failed batch of a transaction.
type BatchUpsertError struct {
	Index      int
	StatusCode int
	Cause      error
}

func (e *BatchUpsertError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("batch %d upsert failed with status %d: %v", e.Index, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("batch %d upsert failed: %v", e.Index, e.Cause)
}

func (e *BatchUpsertError) Unwrap() error {
	return e.Cause
}

// Is matches ErrBatchUpsert regardless of the underlying cause.
func (e *BatchUpsertError) Is(target error) bool {
	return target == ErrBatchUpsert
}

// NewBatchUpsertError builds a BatchUpsertError, lifting the status code out of cause.
func NewBatchUpsertError(index int, cause error) *BatchUpsertError {
	return &BatchUpsertError{
		Index:      index,
		StatusCode: StatusCode(cause),
		Cause:      cause,
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var bue *BatchUpsertError
	if stderrors.As(err, &bue) && bue.StatusCode != 0 {
		return bue.StatusCode
	}
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// TypeOf returns the type of the outermost StructuredError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type, true
	}
	return "", false
}

// Common error constructors for frequent use cases

// NewValidationError creates a validation error
func NewValidationError(operation, message string) *StructuredError {
	return New(ErrorTypeValidation, operation, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

// WrapNetworkError wraps a transport failure (no HTTP response)
func WrapNetworkError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeNetwork, operation, message)
}

// WrapDatasetError wraps a dataset read/write failure
func WrapDatasetError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeDataset, operation, message)
}

// WrapSearchError wraps a search failure
func WrapSearchError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeSearch, operation, message)
}
