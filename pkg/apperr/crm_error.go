package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Resolution errors
	CodeSuggestionNotFound       = "SUGGESTION_NOT_FOUND"
	CodeSuggestionStale          = "SUGGESTION_STALE"
	CodeLookupFailed             = "LOOKUP_FAILED"
	CodeOrganizationCreateFailed = "ORGANIZATION_CREATE_FAILED"
	CodeDomainCreateFailed       = "DOMAIN_CREATE_FAILED"
	CodeAssociationFailed        = "ASSOCIATION_FAILED"

	// Internal errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeTimeout       = "TIMEOUT"
	CodeRateLimited   = "RATE_LIMITED"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// SuggestionNotFound is returned when no suggestion exists for a contact.
func SuggestionNotFound(contactID int64) *AppError {
	return New(CodeSuggestionNotFound, "no suggestion for contact", http.StatusNotFound).
		WithDetail("contact_id", contactID)
}

// SuggestionStale is returned when the contact's associations changed since the suggestion was computed.
func SuggestionStale(contactID int64) *AppError {
	return New(CodeSuggestionStale, "suggestion is out of date; contact already has an organization", http.StatusConflict).
		WithDetail("contact_id", contactID)
}

func LookupFailed(operation string, err error) *AppError {
	return Wrap(err, CodeLookupFailed, fmt.Sprintf("lookup failed: %s", operation), http.StatusBadGateway)
}

func OrganizationCreateFailed(err error) *AppError {
	return Wrap(err, CodeOrganizationCreateFailed, "failed to create organization", http.StatusInternalServerError)
}

func DomainCreateFailed(err error) *AppError {
	return Wrap(err, CodeDomainCreateFailed, "failed to create organization: domain registration failed", http.StatusInternalServerError)
}

func AssociationFailed(err error) *AppError {
	return Wrap(err, CodeAssociationFailed, "failed to associate contact with organization", http.StatusInternalServerError)
}

func DatabaseError(operation string, err error) *AppError {
	return Wrap(err, CodeDatabaseError, fmt.Sprintf("database error: %s", operation), http.StatusInternalServerError)
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

func InternalWithError(err error) *AppError {
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

func Unavailable(service string) *AppError {
	return New(CodeUnavailable, fmt.Sprintf("%s not available", service), http.StatusServiceUnavailable)
}

func Timeout(operation string) *AppError {
	return New(CodeTimeout, fmt.Sprintf("operation timed out: %s", operation), http.StatusGatewayTimeout)
}

func RateLimited(retryAfterSeconds int) *AppError {
	return New(CodeRateLimited, "too many requests", http.StatusTooManyRequests).
		WithDetail("retry_after", retryAfterSeconds)
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
