package service

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

const (
	minPasswordBytes = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

// registration is the validated shape of a register call.
type registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"password"`
}

type credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", validatePassword)
	return v
}

// validatePassword: 8..72 bytes with at least one letter and one digit.
func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < minPasswordBytes || len(password) > maxPasswordBytes {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "password":
		return "must be 8-72 bytes and contain a letter and a digit"
	default:
		return "is invalid"
	}
}

// validateStruct converts validator failures into a ValidationError with per-field details.
func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewInternalError(err)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = validationMessage(fe)
	}
	return apperrors.NewValidationError("invalid input", details)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
