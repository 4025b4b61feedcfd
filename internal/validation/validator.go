// Package validation validates request DTOs with validator/v10.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bookclub/bookclub/internal/domain"
	domainerrors "github.com/bookclub/bookclub/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports fields by their JSON names and knows
// the club-specific tags "role" and "publicity". It panics if a tag cannot be
// registered.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := registerTags(v, customTags); err != nil {
		panic(err)
	}

	return &Validator{v: v}
}

var customTags = map[string]validator.Func{
	"role": func(fl validator.FieldLevel) bool {
		return domain.Role(fl.Field().String()).Valid()
	},
	"publicity": func(fl validator.FieldLevel) bool {
		return domain.Publicity(fl.Field().String()).Valid()
	},
}

func registerTags(v *validator.Validate, tags map[string]validator.Func) error {
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register validation tag %q: %w", tag, err)
		}
	}
	return nil
}

// Validate validates a struct and returns an INVALID_INPUT error listing the
// offending fields.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}
	return domainerrors.InvalidInputWithDetails("validation failed", fieldErrors)
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", e.Param())
		}
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "role":
		return "must be one of: READER ADMIN OWNER"
	case "publicity":
		return "must be one of: PUBLIC PRIVATE"
	case "unique":
		return "must not contain duplicates"
	case "dive":
		return "contains an invalid item"
	default:
		return "is invalid"
	}
}
