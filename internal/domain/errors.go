package domain

import (
	"net/http"
	"time"
)

// Machine-readable error codes. These are part of the API contract and must
// not be reworded.
const (
	CodeInvalidInput           = "INVALID_INPUT"
	CodeEmailExists            = "EMAIL_EXISTS"
	CodePhoneExists            = "PHONE_EXISTS"
	CodePasswordTooShort       = "PASSWORD_TOO_SHORT"
	CodePasswordTooWeak        = "PASSWORD_TOO_WEAK"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeAccountLocked          = "ACCOUNT_LOCKED"
	CodeAccountLockedAttempts  = "ACCOUNT_LOCKED_ATTEMPTS"
	CodeEmailNotVerified       = "EMAIL_NOT_VERIFIED"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeAlreadyVerified        = "ALREADY_VERIFIED"
	CodeInvalidCurrentPassword = "INVALID_CURRENT_PASSWORD"
	CodeInvalidUser            = "INVALID_USER"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeInternalError          = "INTERNAL_ERROR"
)

// Success codes carried alongside confirmation messages.
const (
	CodeEmailVerified    = "EMAIL_VERIFIED"
	CodeVerificationSent = "VERIFICATION_SENT"
	CodeResetEmailSent   = "RESET_EMAIL_SENT"
	CodePasswordReset    = "PASSWORD_RESET"
	CodePasswordChanged  = "PASSWORD_CHANGED"
	CodeLogoutSuccess    = "LOGOUT_SUCCESS"
)

// AuthError is a caller-facing failure with a stable code, an HTTP status,
// and optional detail fields surfaced in the JSON body.
type AuthError struct {
	Code    string
	Message string
	Status  int

	// Optional detail
	Field             string
	AttemptsRemaining *int
	LockUntil         *time.Time
	Email             string
}

func (e *AuthError) Error() string {
	return e.Message
}

func ErrValidation(message, field string) *AuthError {
	return &AuthError{Code: CodeInvalidInput, Message: message, Status: http.StatusBadRequest, Field: field}
}

func ErrEmailExists() *AuthError {
	return &AuthError{
		Code:    CodeEmailExists,
		Message: "Account already exists with this email address",
		Status:  http.StatusBadRequest,
		Field:   "email",
	}
}

func ErrPhoneExists() *AuthError {
	return &AuthError{
		Code:    CodePhoneExists,
		Message: "Account already exists with this phone number",
		Status:  http.StatusBadRequest,
		Field:   "phone",
	}
}

func ErrPasswordTooShort(message string) *AuthError {
	return &AuthError{Code: CodePasswordTooShort, Message: message, Status: http.StatusBadRequest, Field: "password"}
}

func ErrPasswordTooWeak() *AuthError {
	return &AuthError{
		Code:    CodePasswordTooWeak,
		Message: "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character",
		Status:  http.StatusBadRequest,
		Field:   "password",
	}
}

func ErrInvalidCredentials(attemptsRemaining *int) *AuthError {
	return &AuthError{
		Code:              CodeInvalidCredentials,
		Message:           "Invalid email or password",
		Status:            http.StatusBadRequest,
		AttemptsRemaining: attemptsRemaining,
	}
}

func ErrAccountLocked(message string, lockUntil time.Time) *AuthError {
	return &AuthError{
		Code:      CodeAccountLocked,
		Message:   message,
		Status:    http.StatusLocked,
		LockUntil: &lockUntil,
	}
}

func ErrAccountLockedAttempts() *AuthError {
	return &AuthError{
		Code:    CodeAccountLockedAttempts,
		Message: "Account locked due to too many failed login attempts. Try again in 30 minutes.",
		Status:  http.StatusLocked,
	}
}

func ErrEmailNotVerified(email string) *AuthError {
	return &AuthError{
		Code:    CodeEmailNotVerified,
		Message: "Please verify your email address before logging in. Check your inbox for the verification link.",
		Status:  http.StatusForbidden,
		Email:   email,
	}
}

func ErrInvalidToken(message string) *AuthError {
	return &AuthError{Code: CodeInvalidToken, Message: message, Status: http.StatusBadRequest}
}

func ErrTokenExpired(message string) *AuthError {
	return &AuthError{Code: CodeTokenExpired, Message: message, Status: http.StatusBadRequest}
}

func ErrUserNotFound(message string) *AuthError {
	return &AuthError{Code: CodeUserNotFound, Message: message, Status: http.StatusNotFound}
}

func ErrAlreadyVerified() *AuthError {
	return &AuthError{Code: CodeAlreadyVerified, Message: "Email is already verified", Status: http.StatusBadRequest}
}

func ErrInvalidCurrentPassword() *AuthError {
	return &AuthError{Code: CodeInvalidCurrentPassword, Message: "Current password is incorrect", Status: http.StatusBadRequest}
}

func ErrInvalidUser() *AuthError {
	return &AuthError{Code: CodeInvalidUser, Message: "Invalid user or unverified account", Status: http.StatusUnauthorized}
}
