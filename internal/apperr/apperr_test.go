package apperr

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
)

func TestKindOfClassifiesWrappedSentinels(t *testing.T) {
	t.Parallel()

	cases := map[Kind]error{
		KindUnauthenticated:      eris.Wrap(ErrUnauthenticated, "verifying token"),
		KindForbidden:            eris.Wrapf(ErrForbidden, "user %d", 7),
		KindNotFound:             eris.Wrap(eris.Wrap(ErrNotFound, "article 3"), "updating article"),
		KindConflict:             eris.Wrap(ErrConflict, "email taken"),
		KindUnsupportedMediaType: eris.Wrap(ErrUnsupportedMediaType, "text/plain"),
		KindPayloadTooLarge:      eris.Wrap(ErrPayloadTooLarge, "9 MiB"),
		KindStoreFailure:         errors.New("database is locked"),
	}

	for want, err := range cases {
		if got := KindOf(err); got != want {
			t.Errorf("KindOf(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestKindOfDetectsValidationErrors(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Violations: []Violation{
		{Field: "username", Message: "is required"},
		{Field: "email", Message: "must be a valid email address"},
	}}

	if KindOf(err) != KindValidationFailed {
		t.Fatalf("expected validation kind, got %s", KindOf(err))
	}

	verr, ok := AsValidation(err)
	if !ok {
		t.Fatalf("expected AsValidation to succeed")
	}
	if len(verr.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(verr.Violations))
	}
	if err.Error() != "validation failed: username: is required; email: must be a valid email address" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
