package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"blogpress/app/internal/apperr"
)

// Validator checks raw payloads against the named rule sets.
type Validator struct {
	engine *validator.Validate
	sets   map[string][]Rule
}

// New returns a Validator loaded with every built-in rule set.
func New() *Validator {
	return &Validator{
		engine: validator.New(validator.WithRequiredStructEnabled()),
		sets:   ruleSets,
	}
}

// Check evaluates every rule of set against fields in declaration order. It returns the
// declared fields that were present, after their declared normalisation, or a
// *apperr.ValidationError listing every failing field.
func (v *Validator) Check(set string, fields map[string]any) (map[string]any, error) {
	rules, ok := v.sets[set]
	if !ok {
		return nil, eris.Errorf("unknown rule set %q", set)
	}

	clean := make(map[string]any, len(rules))
	var violations []apperr.Violation

	for _, rule := range rules {
		value, present := fields[rule.Field]
		if !present || value == nil {
			if rule.Optional {
				continue
			}
			value = ""
		}

		value = normalise(rule, value)

		if err := v.engine.Var(value, rule.Tag); err != nil {
			violations = append(violations, apperr.Violation{Field: rule.Field, Message: describe(err)})
			continue
		}

		if rule.DistinctFrom != "" {
			if other, ok := fields[rule.DistinctFrom]; ok && other == value {
				violations = append(violations, apperr.Violation{
					Field:   rule.Field,
					Message: fmt.Sprintf("must differ from %s", rule.DistinctFrom),
				})
				continue
			}
		}

		if present {
			clean[rule.Field] = value
		}
	}

	if len(violations) > 0 {
		return nil, &apperr.ValidationError{Violations: violations}
	}
	return clean, nil
}

func normalise(rule Rule, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if rule.Trim {
		s = strings.TrimSpace(s)
	}
	if rule.Lower {
		s = strings.ToLower(s)
	}
	return s
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "is invalid"
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "number":
		return "must be a number"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed %s rule", fe.Tag())
	}
}
