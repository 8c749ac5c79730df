package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned to clients.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeConflict              = "CONFLICT"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeForbiddenCSRF         = "CSRF_FORBIDDEN"
	CodeNotFound              = "NOT_FOUND"
	CodeUpstreamUnavailable   = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout       = "UPSTREAM_TIMEOUT"
	CodeRevocationUnavailable = "REVOCATION_UNAVAILABLE"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternal              = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewUnauthorized is the single "not authenticated" answer. The cause is kept for
// logs only and never rendered outside non-production detail.
func NewUnauthorized(message string, cause ...error) error {
	de := NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
	if len(cause) > 0 {
		de.Err = cause[0]
	}
	return de
}

func NewInvalidCredentials() error {
	return NewDomainError(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, nil)
}

func NewForbiddenCSRF(message string) error {
	return NewDomainError(CodeForbiddenCSRF, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewUpstreamUnavailable reports that the upstream could not be reached at all.
func NewUpstreamUnavailable(err error) error {
	return &DomainError{
		Code:       CodeUpstreamUnavailable,
		Message:    "upstream service unavailable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewUpstreamTimeout reports that the upstream did not answer within the proxy budget.
func NewUpstreamTimeout(err error) error {
	return &DomainError{
		Code:       CodeUpstreamTimeout,
		Message:    "upstream service timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

func NewServiceUnavailable(code, message string, err error) error {
	if code == "" {
		code = CodeServiceUnavailable
	}
	return &DomainError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// IsCode reports whether err carries the given DomainError code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ConfigError is a fatal startup-time configuration problem. It is never retried.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// NewConfigError constructs a ConfigError.
func NewConfigError(key, reason string) error {
	return &ConfigError{Key: key, Reason: reason}
}
