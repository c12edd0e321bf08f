// Package errors defines stable error codes for the session catalog.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// StoreUnavailable indicates the catalog database cannot be reached or is locked
	StoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// QuotaExceeded indicates the daily analysis limit has been reached
	QuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// AnalysisTimeout indicates an analysis job exceeded its deadline
	AnalysisTimeout ErrorCode = "ANALYSIS_TIMEOUT"
	// AnalysisFailed indicates the analysis collaborator returned an error
	AnalysisFailed ErrorCode = "ANALYSIS_FAILED"
	// InvalidQuery indicates a malformed filter or pagination combination
	InvalidQuery ErrorCode = "INVALID_QUERY"
	// LinkRejected indicates a continuation reference crossed project boundaries
	LinkRejected ErrorCode = "LINK_REJECTED"
	// SessionNotFound indicates the requested session does not exist
	SessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// CatalogError represents a catalog error with a stable code and message
type CatalogError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new CatalogError
func New(code ErrorCode, message string, cause error) *CatalogError {
	return &CatalogError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CatalogError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CatalogError) WithDetails(details interface{}) *CatalogError {
	e.Details = details
	return e
}

// CodeOf extracts the stable code from an error chain, or InternalError
func CodeOf(err error) ErrorCode {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// HasCode reports whether the error chain carries the given code
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
