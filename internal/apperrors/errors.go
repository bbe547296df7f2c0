package apperrors

import (
	"errors"
	"net/http"
)

var (
	// repository specific errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// service specific errors
	ErrValidation    = errors.New("validation error")
	ErrQuotaExceeded = errors.New("query limit reached")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternal      = errors.New("internal error")
)

// Error pairs a sentinel kind with a message that is safe to show to callers.
// The wrapped cause is kept for logging only.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Validation reports bad caller input.
func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

// QuotaExceeded reports that the caller's plan has no queries left.
func QuotaExceeded(msg string) error {
	if msg == "" {
		msg = "Query limit reached. Please upgrade."
	}
	return &Error{Kind: ErrQuotaExceeded, Message: msg}
}

// NotFound reports a missing entity.
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

// Unauthorized reports failed authentication.
func Unauthorized(msg string) error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

// Conflict reports a uniqueness violation.
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

// Internal wraps an unexpected failure. The cause never reaches the caller.
func Internal(cause error) error {
	return &Error{Kind: ErrInternal, Message: "internal error", Cause: cause}
}

// StatusCode maps an error to the HTTP status the API responds with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text shown to API callers. Anything that is not
// a classified *Error collapses to "internal error".
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && !errors.Is(appErr.Kind, ErrInternal) {
		return appErr.Message
	}
	for _, kind := range []error{ErrValidation, ErrUnauthorized, ErrQuotaExceeded, ErrNotFound, ErrConflict} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ErrInternal.Error()
}
