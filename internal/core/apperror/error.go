// Package apperror provides structured error handling for ledger operations.
// All business errors must use AppError so callers can branch on the code
// instead of matching message text.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes grouped by concern
const (
	// Infrastructure errors
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidQuantity = "INVALID_QUANTITY"
	CodeMissingActor    = "MISSING_ACTOR"

	// Business rule violations
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Not found
	CodeNotFound = "NOT_FOUND"

	// Conflict
	CodeReportExists = "REPORT_ALREADY_EXISTS"
)

// AppError is the standard error type for the ledger engine.
// It implements the error interface and carries structured details
// for logs and command output.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (product ids, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewInvalidQuantity is returned by the recorder when a movement quantity
// does not satisfy the sign convention of its kind.
func NewInvalidQuantity(kind string, quantity string) *AppError {
	return &AppError{
		Code:    CodeInvalidQuantity,
		Message: fmt.Sprintf("quantity %s is not valid for %s movements", quantity, kind),
		Details: map[string]any{"kind": kind, "quantity": quantity},
	}
}

// NewMissingActor is returned when a write operation carries no actor.
// There is deliberately no implicit system-user fallback.
func NewMissingActor() *AppError {
	return &AppError{
		Code:    CodeMissingActor,
		Message: "actor is required for ledger writes",
	}
}

// NewNotFound creates a not found error
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(productID string, requested, available string) *AppError {
	return &AppError{
		Code:    CodeInsufficientStock,
		Message: "insufficient stock",
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewReportExists is returned by the aggregator when a report for the same
// (period, type, actor) key already exists and regeneration was not forced.
func NewReportExists(periodType, period, actorID string) *AppError {
	return &AppError{
		Code:    CodeReportExists,
		Message: fmt.Sprintf("%s report for %s already exists", periodType, period),
		Details: map[string]any{
			"period_type": periodType,
			"period":      period,
			"actor_id":    actorID,
		},
	}
}

// NewDatabase wraps a storage failure. Fatal for the current unit of work only;
// batch jobs record it per item and continue.
func NewDatabase(err error) *AppError {
	return &AppError{
		Code:    CodeDatabase,
		Message: "storage operation failed",
		Err:     err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode checks whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsReportExists checks if error is CodeReportExists
func IsReportExists(err error) bool {
	return HasCode(err, CodeReportExists)
}

// IsInvalidQuantity checks if error is CodeInvalidQuantity
func IsInvalidQuantity(err error) bool {
	return HasCode(err, CodeInvalidQuantity)
}
