package feature

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every Feature check. Custom rules are registered in init.
var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("nonblank", validateNonBlank)
	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = validate.RegisterValidation("status", validateStatus)
}

// validateNonBlank rejects strings that are empty or only whitespace.
func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateMaxBytes bounds the byte length (not rune count) of a string.
func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

func validateStatus(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}

// Validate checks every field rule of a complete Feature and returns the
// first failure as a *ValidationError naming the feature and field.
func Validate(f *Feature) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{ID: f.ID, Reason: err.Error()}
	}

	fe := fieldErrs[0]
	return &ValidationError{ID: f.ID, Field: fe.Field(), Reason: describe(fe)}
}

// describe turns a validator failure into a caller-facing reason.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "nonblank":
		return "is required and must not be empty"
	case "maxbytes":
		return fmt.Sprintf("field too long (%d bytes, max %s)", len(fmt.Sprint(fe.Value())), fe.Param())
	case "status":
		return fmt.Sprintf("unknown status %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
