// Package errors provides custom error types and error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes.
const (
	// Input errors.
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"

	// Runtime errors.
	CodeInternal       = "INTERNAL_ERROR"
	CodeIO             = "IO_ERROR"
	CodeMLError        = "ML_ERROR"
	CodeDownload       = "DOWNLOAD_ERROR"
	CodeConversion     = "CONVERSION_ERROR"
	CodeOutfitMismatch = "OUTFIT_MISMATCH"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// IOError creates a filesystem error.
func IOError(message string, err error) *AppError {
	return Wrap(CodeIO, message, err)
}

// MLError creates an inference error.
func MLError(message string, err error) *AppError {
	return Wrap(CodeMLError, message, err)
}

// DownloadError creates a download error.
func DownloadError(message string, err error) *AppError {
	return Wrap(CodeDownload, message, err)
}

// ConversionError creates an external conversion tool error.
func ConversionError(message string, err error) *AppError {
	return Wrap(CodeConversion, message, err)
}

// OutfitMismatchError reports a reconstructed outfit that differs from ground truth.
func OutfitMismatchError(userID, outfitID int, message string) *AppError {
	return New(CodeOutfitMismatch, message).
		WithDetail("user", fmt.Sprintf("%d", userID)).
		WithDetail("outfit", fmt.Sprintf("%d", outfitID))
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsOutfitMismatch checks if error is an outfit reconstruction failure.
func IsOutfitMismatch(err error) bool {
	return CodeOf(err) == CodeOutfitMismatch
}
