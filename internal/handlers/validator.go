// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	// ErrInvalidBody is returned when a request body cannot be decoded.
	ErrInvalidBody = apperr.New(apperr.Validation, "invalid request body")
	// ErrInvalidInput is the message of struct tag validation failures.
	ErrInvalidInput = apperr.New(apperr.Validation, "invalid input")
)

// Validator adapts go-playground/validator to echo.Validator. Field names in
// errors are the JSON (or form) names of the request struct.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return &Validator{validate: v}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return apperr.WithFields(ErrInvalidInput, fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "numeric":
		return "must contain digits only"
	case "datetime":
		return "must be a date in the format " + fe.Param()
	case "gt", "gte":
		return "must be greater than " + fe.Param()
	case "dive":
		return "contains an invalid value"
	default:
		return "is invalid"
	}
}

// bind decodes the request into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Wrap(ErrInvalidBody, err)
	}
	return c.Validate(req)
}
