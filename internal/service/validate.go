package service

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/petadopt/internal/apperror"
)

// fieldError converts the validation.Errors returned by ozzo's
// ValidateStruct into a single apperror.ValidationFailed.
//
// validation.Errors is a map, so order lists the fields in the sequence a
// client fills a form; the first failing one is reported.
func fieldError(err error, order ...string) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}

	for _, field := range order {
		if fe, ok := errs[field]; ok && fe != nil {
			return apperror.ValidationFailed(field, fe.Error())
		}
	}
	for field, fe := range errs {
		return apperror.ValidationFailed(field, fe.Error())
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
