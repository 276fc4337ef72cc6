package validation

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength     = 255
	MaxEmailLength    = 255
	MaxPasswordLength = 1024
	MaxKeyNameLength  = 100
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	return "invalid request"
}

// NormalizeEmail trims surrounding whitespace. Case is preserved because
// emails are unique as stored.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func ValidateRegister(name, email, password string) ValidationErrors {
	var errs ValidationErrors

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		errs = append(errs, FieldError{Field: "name", Message: "name is required"})
	case utf8.RuneCountInString(name) > MaxNameLength:
		errs = append(errs, FieldError{Field: "name", Message: "name must be at most 255 characters"})
	}

	errs = append(errs, validateEmail(email)...)
	errs = append(errs, validatePassword(password)...)
	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, validateEmail(email)...)
	errs = append(errs, validatePassword(password)...)
	return errs
}

// ValidateKeyName checks an already defaulted key name and optional expiry.
func ValidateKeyName(name string, expiresAt *time.Time, now time.Time) ValidationErrors {
	var errs ValidationErrors
	switch {
	case strings.TrimSpace(name) == "":
		errs = append(errs, FieldError{Field: "name", Message: "name must not be blank"})
	case utf8.RuneCountInString(name) > MaxKeyNameLength:
		errs = append(errs, FieldError{Field: "name", Message: "name must be at most 100 characters"})
	}
	if expiresAt != nil && !expiresAt.After(now) {
		errs = append(errs, FieldError{Field: "expires_at", Message: "expires_at must be in the future"})
	}
	return errs
}

func validateEmail(email string) ValidationErrors {
	email = NormalizeEmail(email)
	if email == "" {
		return ValidationErrors{{Field: "email", Message: "email is required"}}
	}
	if len(email) > MaxEmailLength {
		return ValidationErrors{{Field: "email", Message: "email must be at most 255 characters"}}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ValidationErrors{{Field: "email", Message: "email must be a valid address"}}
	}
	if at := strings.LastIndexByte(email, '@'); !strings.Contains(email[at+1:], ".") {
		return ValidationErrors{{Field: "email", Message: "email must be a valid address"}}
	}
	return nil
}

func validatePassword(password string) ValidationErrors {
	switch {
	case password == "":
		return ValidationErrors{{Field: "password", Message: "password is required"}}
	case len(password) > MaxPasswordLength:
		return ValidationErrors{{Field: "password", Message: "password is too long"}}
	}
	return nil
}
