// Package services provides the application services the API and CLI sit on:
// workflow queries and workflow validation.
package services

import (
	"errors"
	"fmt"
)

// Validation errors surface as 400 responses in the API and as non-zero
// exits in the CLI.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")

	ErrWorkflowNil     = errors.New("workflow cannot be nil")
	ErrWorkflowInvalid = errors.New("workflow is invalid")
	ErrNoNodes         = errors.New("workflow has no nodes")
	ErrNoTriggerNode   = errors.New("workflow has no trigger node")
	ErrUnknownNodeType = errors.New("unknown node type")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a request or workflow validation
// error that should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowInvalid) ||
		errors.Is(err, ErrNoNodes) ||
		errors.Is(err, ErrNoTriggerNode) ||
		errors.Is(err, ErrUnknownNodeType)
}
