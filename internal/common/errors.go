package common

import (
	"errors"
	"net/http"
)

// Error taxonomy codes shared by all checkout components.
const (
	CodeValidation      = "VALIDATION"
	CodeDomainRule      = "DOMAIN_RULE"
	CodeExternalService = "EXTERNAL_SERVICE"
	CodeCalculator      = "CALCULATOR_FAILURE"
	CodeInternal        = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError flags input the caller must fix; it is never retried.
func ValidationError(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, http.StatusUnprocessableEntity, err)
}

// DomainRuleError flags a business-rule violation such as an inactive
// product, insufficient stock or an unavailable coupon.
func DomainRuleError(message string, err error) *AppError {
	return NewAppError(CodeDomainRule, message, http.StatusConflict, err)
}

// ExternalServiceError wraps a failure from a collaborator ledger or store.
func ExternalServiceError(message string, err error) *AppError {
	return NewAppError(CodeExternalService, message, http.StatusBadGateway, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// AsAppError extracts the AppError from an error chain, or wraps the error
// as an internal failure when no AppError is present.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}
