package domain

import (
	"strings"
	"unicode"
)

const MinPasswordLength = 8

const specialChars = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword enforces the registration password policy: minimum length
// plus at least one uppercase letter, one lowercase letter, one digit, and
// one special character. Returns nil when the password is acceptable.
func ValidatePassword(password string) *AuthError {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort("Password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return ErrPasswordTooWeak()
	}

	return nil
}

// ValidatePasswordLength applies only the minimum-length rule. Reset and
// change flows check length alone; the full strength policy applies at
// registration.
func ValidatePasswordLength(password, message string) *AuthError {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort(message)
	}
	return nil
}
