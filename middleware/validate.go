// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/danielhkuo/quickly-tally/tally"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("locationid", validateLocationID)
}

// validateLocationID accepts "" (the root) and every well-formed
// identifier of the hierarchy.
func validateLocationID(fl validator.FieldLevel) bool {
	return tally.ValidID(fl.Field().String())
}

// DecodeJSON parses the body into v and validates its struct tags. Every
// failure wraps ErrBadRequest.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := ParseJSONBody(w, r, v); err != nil {
		return err
	}
	return Validate(v)
}

// Validate checks the struct tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", f.Field(), f.Tag(), f.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", f.Field(), f.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrBadRequest, strings.Join(msgs, "; "))
}

// ValidVar checks a single value against a tag, e.g. "locationid".
func ValidVar(v any, tag string) bool {
	return validate.Var(v, tag) == nil
}
