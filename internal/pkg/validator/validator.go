// Package validator wraps go-playground/validator with a single shared
// instance and flattens rule violations into one joined error.
package validator

import (
	"errors"
	"fmt"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the first error of every joined validation failure.
var ErrValidationFailed = errors.New("validation failed")

var validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())

func formatError(err error) error {
	var fieldErrs gvalidator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs)+1)
	errs = append(errs, ErrValidationFailed)
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: %q fails %q", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag()))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` struct tags.
//
//	if err := validator.Validate(cfg); errors.Is(err, validator.ErrValidationFailed) {
//	    // one joined error per violated rule
//	}
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}
	return nil
}

// ValidateVar checks a single value against a tag expression such as
// "required,hexadecimal,len=66".
func ValidateVar(field any, tag string) error {
	if err := validator.Var(field, tag); err != nil {
		return formatError(err)
	}
	return nil
}
