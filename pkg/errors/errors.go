package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates the operation is not allowed in the current state
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates a missing or expired admin session
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeStoreUnconfigured indicates the document store still carries placeholder credentials
	ErrorTypeStoreUnconfigured ErrorType = "STORE_UNCONFIGURED"

	// ErrorTypePermissionDenied indicates the store rejected the caller's credentials for the operation
	ErrorTypePermissionDenied ErrorType = "PERMISSION_DENIED"

	// ErrorTypeWriteFailure indicates a store write failed for a non-permission reason
	ErrorTypeWriteFailure ErrorType = "WRITE_FAILURE"

	// ErrorTypeDeleteFailure indicates a store delete failed for a non-permission reason
	ErrorTypeDeleteFailure ErrorType = "DELETE_FAILURE"

	// ErrorTypeSubscribeFailure indicates the live subscription could not be opened or broke
	ErrorTypeSubscribeFailure ErrorType = "SUBSCRIBE_FAILURE"

	// ErrorTypeInvalidCredential indicates the admin gate rejected the candidate secret
	ErrorTypeInvalidCredential ErrorType = "INVALID_CREDENTIAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// TypeOf returns the type of the first AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewStoreUnconfiguredError creates an error for writes refused because the store is not configured
func NewStoreUnconfiguredError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeStoreUnconfigured,
		Message: message,
	}
}

// NewPermissionDeniedError creates a new permission denied error
func NewPermissionDeniedError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePermissionDenied,
		Message: message,
		Err:     err,
	}
}

// NewWriteFailureError creates a new write failure error
func NewWriteFailureError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeWriteFailure,
		Message: message,
		Err:     err,
	}
}

// NewDeleteFailureError creates a new delete failure error
func NewDeleteFailureError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeDeleteFailure,
		Message: message,
		Err:     err,
	}
}

// NewSubscribeFailureError creates a new subscribe failure error
func NewSubscribeFailureError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeSubscribeFailure,
		Message: message,
		Err:     err,
	}
}

// NewInvalidCredentialError creates a new invalid credential error
func NewInvalidCredentialError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidCredential,
		Message: message,
	}
}
