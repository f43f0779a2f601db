// Package errors defines the categorized error values shared across
// the enrichment service. The category decides how a failure is
// handled: transient fetch errors are re-enqueued by the job wrapper,
// validation errors surface on the subject's save, and not-found races
// between enqueue and dequeue are treated as silent no-ops.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies an error for handling and HTTP mapping.
type Category string

const (
	// CategoryMissingService marks a lookup of an unregistered service kind.
	CategoryMissingService Category = "missing_service"
	// CategoryValidation marks an identifier that failed the existence probe.
	CategoryValidation Category = "validation"
	// CategoryTransient marks timeout-like data source failures. This is
	// the only category the job wrapper re-enqueues on.
	CategoryTransient Category = "transient"
	// CategoryRateLimit marks a data source rate limit response.
	CategoryRateLimit Category = "rate_limit"
	// CategoryAuth marks a data source auth failure.
	CategoryAuth Category = "auth"
	// CategoryNotFound marks a missing resource, including the expected
	// enqueue/dequeue race on deleted subjects and records.
	CategoryNotFound Category = "not_found"
	// CategoryDatabase marks record store failures.
	CategoryDatabase Category = "database"
	// CategoryQueue marks queue transport failures.
	CategoryQueue Category = "queue"
	// CategorySystem marks everything else.
	CategorySystem Category = "system"
)

// Error carries a category, a stable code, and an optional cause.
type Error struct {
	Category   Category
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewMissingServiceError reports a service kind with no registered
// descriptor. Always fatal to the calling operation.
func NewMissingServiceError(kind string) *Error {
	return &Error{
		Category:   CategoryMissingService,
		StatusCode: http.StatusNotFound,
		Code:       "MISSING_SERVICE",
		Message:    fmt.Sprintf("no service registered for kind %q", kind),
		Details:    map[string]interface{}{"kind": kind},
	}
}

// NewValidationError reports an identifier that does not correspond to
// a real external account.
func NewValidationError(kind, identifier, reason string) *Error {
	return &Error{
		Category:   CategoryValidation,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "INVALID_IDENTIFIER",
		Message:    reason,
		Details: map[string]interface{}{
			"kind":       kind,
			"identifier": identifier,
		},
	}
}

// NewTransientFetchError reports a timeout-like failure talking to a
// data source.
func NewTransientFetchError(source string, cause error) *Error {
	return &Error{
		Category:   CategoryTransient,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "TRANSIENT_FETCH",
		Message:    fmt.Sprintf("transient failure fetching from %s", source),
		Cause:      cause,
		Details:    map[string]interface{}{"source": source},
	}
}

// NewRateLimitError reports a data source rate limit response.
func NewRateLimitError(source string, retryAfter int) *Error {
	return &Error{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "SOURCE_RATE_LIMITED",
		Message:    fmt.Sprintf("rate limited by %s", source),
		Details: map[string]interface{}{
			"source":     source,
			"retryAfter": retryAfter,
		},
	}
}

// NewAuthError reports a data source authentication failure.
func NewAuthError(source string) *Error {
	return &Error{
		Category:   CategoryAuth,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_AUTH_FAILED",
		Message:    fmt.Sprintf("authentication failed against %s", source),
		Details:    map[string]interface{}{"source": source},
	}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewDatabaseError reports a record store failure.
func NewDatabaseError(operation string, cause error) *Error {
	return &Error{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details:    map[string]interface{}{"operation": operation},
	}
}

// NewQueueError reports a queue transport failure.
func NewQueueError(operation string, cause error) *Error {
	return &Error{
		Category:   CategoryQueue,
		StatusCode: http.StatusInternalServerError,
		Code:       "QUEUE_ERROR",
		Message:    fmt.Sprintf("queue error during %s", operation),
		Cause:      cause,
		Details:    map[string]interface{}{"operation": operation},
	}
}

// NewInternalError reports an uncategorized failure.
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// category inspects an error chain for a categorized error.
func category(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}

// IsTransient reports whether err belongs to the fixed retry
// allow-list. Only transient fetch errors qualify; rate limit and auth
// failures do not unless wrapped as transient by the caller.
func IsTransient(err error) bool {
	cat, ok := category(err)
	return ok && cat == CategoryTransient
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	cat, ok := category(err)
	return ok && cat == CategoryNotFound
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	cat, ok := category(err)
	return ok && cat == CategoryValidation
}

// IsRateLimited reports whether err is a rate limit error.
func IsRateLimited(err error) bool {
	cat, ok := category(err)
	return ok && cat == CategoryRateLimit
}

// IsMissingService reports whether err is a missing-service error.
func IsMissingService(err error) bool {
	cat, ok := category(err)
	return ok && cat == CategoryMissingService
}

// FailOpen reports whether a validation-time data source error should
// be swallowed rather than block the subject's save. Rate limits, auth
// failures, and transient errors cannot confirm or deny the account's
// existence, so validation passes.
func FailOpen(err error) bool {
	cat, ok := category(err)
	if !ok {
		return false
	}
	switch cat {
	case CategoryRateLimit, CategoryAuth, CategoryTransient:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the status code for an error, defaulting to 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
