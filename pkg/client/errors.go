package client

import (
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind identifies which member of the error taxonomy a failure belongs to.
type ErrorKind string

// Error kinds
const (
	KindUnclassified   ErrorKind = ""
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindForbidden      ErrorKind = "forbidden"
	KindGeneric        ErrorKind = "generic"
)

// Authentication error codes
const (
	ErrCodeTokenMissing   = "TOKEN_MISSING"
	ErrCodeTokenExpired   = "TOKEN_EXPIRED"
	ErrCodeExchangeFailed = "EXCHANGE_FAILED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// Text codes attached to unclassified failures
const (
	TextCodeTransport = "TRANSPORT_FAILURE"
	TextCodeDecode    = "DECODE_FAILURE"
	TextCodeRequest   = "INVALID_REQUEST"
	TextCodeFile      = "FILE_FAILURE"
)

// Error is implemented by every failure the dispatcher maps from a status code.
type Error interface {
	error
	Kind() ErrorKind
}

// AuthError represents authentication failures.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// Kind implements Error.
func (*AuthError) Kind() ErrorKind { return KindAuthentication }

// RateLimitError represents rate limit exceeded.
// HasRetryAfter is false when the server sent no delta-seconds Retry-After
// header; RetryAfter is then zero.
type RateLimitError struct {
	Message       string
	RetryAfter    time.Duration
	HasRetryAfter bool
}

func (e *RateLimitError) Error() string {
	if e.HasRetryAfter {
		return fmt.Sprintf("rate limited: %s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// Kind implements Error.
func (*RateLimitError) Kind() ErrorKind { return KindRateLimit }

// Violation is the common object shape of a field-level validation failure.
type Violation struct {
	PropertyPath string `json:"propertyPath"`
	Message      string `json:"message"`
	Code         string `json:"code,omitempty"`
}

// ValidationError represents invalid request data (400 and 422).
// Violations holds the response body's violations list exactly as decoded
// and is never nil.
type ValidationError struct {
	StatusCode int
	Message    string
	Violations []any
}

// Fields returns the object entries of Violations in their typed form.
// Entries that are not objects are skipped.
func (e *ValidationError) Fields() []Violation {
	out := []Violation{}
	for _, entry := range e.Violations {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		v := Violation{}
		v.PropertyPath, _ = obj["propertyPath"].(string)
		v.Message, _ = obj["message"].(string)
		v.Code, _ = obj["code"].(string)
		out = append(out, v)
	}
	return out
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (%d violations)", e.Message, len(e.Violations))
}

// Kind implements Error.
func (*ValidationError) Kind() ErrorKind { return KindValidation }

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Message)
}

// Kind implements Error.
func (*NotFoundError) Kind() ErrorKind { return KindNotFound }

// ForbiddenError represents an operation the token is not allowed to perform.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Message)
}

// Kind implements Error.
func (*ForbiddenError) Kind() ErrorKind { return KindForbidden }

// APIError represents any other HTTP status outside the caller's success set.
type APIError struct {
	StatusCode int
	Body       any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %v", e.StatusCode, e.Body)
}

// Kind implements Error.
func (*APIError) Kind() ErrorKind { return KindGeneric }

// KindOf returns the taxonomy kind of err, or KindUnclassified for transport
// and other failures that did not come from an HTTP status.
func KindOf(err error) ErrorKind {
	var typed Error
	if errors.As(err, &typed) {
		return typed.Kind()
	}
	return KindUnclassified
}

// IsAuthError returns true if the error is authentication-related.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTokenExpired returns true if a cached token exists but is stale.
func IsTokenExpired(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == ErrCodeTokenExpired
}

// IsRateLimitError returns true if the error indicates rate limit exceeded.
func IsRateLimitError(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsValidationError returns true if the error indicates invalid request data.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound returns true if the resource does not exist.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsForbidden returns true if the operation was refused.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// IsServiceError returns true if the error is a service-side error (5xx).
func IsServiceError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode >= 500
}

func unclassifiedError(source error, category goerrors.Category, message, textCode string, code int, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
