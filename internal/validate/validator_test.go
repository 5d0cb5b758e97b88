package validate

import (
	"testing"

	"blogpress/app/internal/apperr"
)

func violationFields(t *testing.T, err error) []string {
	t.Helper()

	verr, ok := apperr.AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func TestCheckReportsEveryViolation(t *testing.T) {
	t.Parallel()

	v := New()

	_, err := v.Check(Register, map[string]any{
		"username": "",
		"email":    "not-an-email",
		"password": "longenough",
	})
	fields := violationFields(t, err)
	if len(fields) != 2 || fields[0] != "username" || fields[1] != "email" {
		t.Fatalf("expected username and email violations in rule order, got %v", fields)
	}

	_, err = v.Check(Login, map[string]any{"email": "nope", "password": ""})
	fields = violationFields(t, err)
	if len(fields) != 2 || fields[0] != "email" || fields[1] != "password" {
		t.Fatalf("expected email and password violations, got %v", fields)
	}
}

func TestCheckAppliesDeclaredNormalisationOnly(t *testing.T) {
	t.Parallel()

	v := New()

	clean, err := v.Check(Login, map[string]any{
		"email":    "  Ada@Example.COM ",
		"password": "  spaced secret  ",
	})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if clean["email"] != "ada@example.com" {
		t.Fatalf("expected trimmed lower-case email, got %q", clean["email"])
	}
	if clean["password"] != "  spaced secret  " {
		t.Fatalf("expected password untouched, got %q", clean["password"])
	}
}

func TestCheckSkipsAbsentOptionalFields(t *testing.T) {
	t.Parallel()

	v := New()

	clean, err := v.Check(ArticleUpdate, map[string]any{"status": " Published "})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if len(clean) != 1 || clean["status"] != "published" {
		t.Fatalf("expected only status to be returned, got %v", clean)
	}

	_, err = v.Check(ArticleUpdate, map[string]any{"title": "   ", "status": "archived"})
	fields := violationFields(t, err)
	if len(fields) != 2 || fields[0] != "title" || fields[1] != "status" {
		t.Fatalf("expected present-but-invalid optionals to fail, got %v", fields)
	}
}

func TestCheckArticleCreate(t *testing.T) {
	t.Parallel()

	v := New()

	clean, err := v.Check(ArticleCreate, map[string]any{
		"title":       " Hello World ",
		"content":     "<p>Body</p>",
		"category_id": "3",
	})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if clean["title"] != "Hello World" || clean["category_id"] != "3" {
		t.Fatalf("unexpected clean payload: %v", clean)
	}
	if _, ok := clean["status"]; ok {
		t.Fatalf("expected absent status to stay absent")
	}

	_, err = v.Check(ArticleCreate, map[string]any{"category_id": "abc"})
	fields := violationFields(t, err)
	if len(fields) != 3 || fields[0] != "title" || fields[1] != "content" || fields[2] != "category_id" {
		t.Fatalf("unexpected violations: %v", fields)
	}
}

func TestCheckPasswordChangeRequiresNewValue(t *testing.T) {
	t.Parallel()

	v := New()

	_, err := v.Check(PasswordChange, map[string]any{
		"current_password": "same-password",
		"new_password":     "same-password",
	})
	verr, ok := apperr.AsValidation(err)
	if !ok || len(verr.Violations) != 1 || verr.Violations[0].Message != "must differ from current_password" {
		t.Fatalf("expected distinct password violation, got %v", err)
	}
}

func TestCheckMessages(t *testing.T) {
	t.Parallel()

	v := New()

	_, err := v.Check(Register, map[string]any{"username": "ab", "email": "a@b.io", "password": "short"})
	verr, ok := apperr.AsValidation(err)
	if !ok || len(verr.Violations) != 2 {
		t.Fatalf("expected two violations, got %v", err)
	}
	if verr.Violations[0].Message != "must be at least 3 characters" {
		t.Fatalf("unexpected username message %q", verr.Violations[0].Message)
	}
	if verr.Violations[1].Message != "must be at least 8 characters" {
		t.Fatalf("unexpected password message %q", verr.Violations[1].Message)
	}
}

func TestCheckUnknownRuleSet(t *testing.T) {
	t.Parallel()

	_, err := New().Check("article.archive", map[string]any{})
	if err == nil {
		t.Fatalf("expected unknown rule set to fail")
	}
	if _, ok := apperr.AsValidation(err); ok {
		t.Fatalf("expected programming error, not a validation failure")
	}
}
