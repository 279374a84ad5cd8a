package validator

import (
	"errors"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// PasswordSymbols is the set of accepted non-alphanumeric password characters.
const PasswordSymbols = `!@#$%^&*(),.?":{}|<>_-`

var validate *validator.Validate

var messages = map[string]string{
	"personname":          "must be at least 2 characters",
	"optional_personname": "must be empty or at least 2 characters",
	"loose_email":         "must be a valid email address",
	"password_complexity": "must be at least 8 characters and contain upper and lower case letters, a digit and a symbol",
	"required":            "is required",
}

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return IsValidName(fl.Field().String())
	})
	_ = validate.RegisterValidation("optional_personname", func(fl validator.FieldLevel) bool {
		return IsValidOptionalName(fl.Field().String())
	})
	_ = validate.RegisterValidation("loose_email", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	})
	_ = validate.RegisterValidation("password_complexity", func(fl validator.FieldLevel) bool {
		return IsValidPassword(fl.Field().String())
	})
}

// FieldError is the first violated rule of a struct.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// Validate struct fields
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe.Tag())
	}
	return out
}

// First returns the first failing field in declaration order, or nil.
func First(v interface{}) *FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FieldError{Field: "_", Tag: "invalid", Message: err.Error()}
	}
	fe := verrs[0]
	return &FieldError{Field: fe.Field(), Tag: fe.Tag(), Message: message(fe.Tag())}
}

func message(tag string) string {
	if m, ok := messages[tag]; ok {
		return m
	}
	return "is invalid"
}

func IsValidName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= 2
}

func IsValidOptionalName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	return IsValidName(name)
}

func IsValidEmail(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

// IsValidPassword requires 8+ characters drawn only from ASCII letters, digits
// and PasswordSymbols, with at least one of each class.
func IsValidPassword(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		default:
			return false
		}
	}
	return lower && upper && digit && symbol
}
