package dcaauth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/opengovern/dca-auth-go/apierr"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("password", isStrongPassword)
		// Report fields by their JSON names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// isStrongPassword requires 8+ characters with an upper, a lower and a digit.
func isStrongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// validateRequest checks v's struct tags and returns a Validation error with
// one entry per failing field.
func validateRequest(v any) error {
	err := requestValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.Wrap(apierr.KindValidation, err, "Validation failed")
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], validationMessage(fe))
	}
	return apierr.NewValidation("Validation failed", fields)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "ip":
		return "must be a valid IP address"
	case "password":
		return "must be at least 8 characters and contain an uppercase letter, a lowercase letter and a number"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
