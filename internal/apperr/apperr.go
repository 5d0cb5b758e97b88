package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel failures shared by every layer. Wrap them with eris to add context; callers
// classify with KindOf.
var (
	ErrUnauthenticated      = eris.New("unauthenticated")
	ErrForbidden            = eris.New("forbidden")
	ErrNotFound             = eris.New("not found")
	ErrConflict             = eris.New("conflict")
	ErrUnsupportedMediaType = eris.New("unsupported media type")
	ErrPayloadTooLarge      = eris.New("payload too large")
)

// Kind is the closed set of failure classes surfaced to clients.
type Kind int

const (
	KindStoreFailure Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindValidationFailed
	KindUnsupportedMediaType
	KindPayloadTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidationFailed:
		return "validation_failed"
	case KindUnsupportedMediaType:
		return "unsupported_media_type"
	case KindPayloadTooLarge:
		return "payload_too_large"
	default:
		return "store_failure"
	}
}

// Violation is a single failed rule for a named field.
type Violation struct {
	Field   string
	Message string
}

// ValidationError carries every violation found for a payload, in rule order.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Field: field, Message: message}}}
}

// AsValidation extracts the ValidationError from err when present.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// KindOf classifies err. Unknown errors are store failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindStoreFailure
	}
	if _, ok := AsValidation(err); ok {
		return KindValidationFailed
	}

	switch {
	case eris.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case eris.Is(err, ErrForbidden):
		return KindForbidden
	case eris.Is(err, ErrNotFound):
		return KindNotFound
	case eris.Is(err, ErrConflict):
		return KindConflict
	case eris.Is(err, ErrUnsupportedMediaType):
		return KindUnsupportedMediaType
	case eris.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	default:
		return KindStoreFailure
	}
}
