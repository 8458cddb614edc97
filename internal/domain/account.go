package domain

import (
	"regexp"
	"strings"
	"time"
)

// Account is a registered user's identity and credential record.
type Account struct {
	ID                string     `json:"id"`
	Role              string     `json:"role"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone,omitempty"`
	PasswordHash      string     `json:"-"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	IsVerified        bool       `json:"is_verified"`
	IsActive          bool       `json:"is_active"`
	LoginAttempts     int        `json:"-"`
	LastLoginAttempt  *time.Time `json:"-"`
	AccountLocked     bool       `json:"-"`
	LockUntil         *time.Time `json:"-"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	VerificationToken string     `json:"-"`
	RegistrationIP    string     `json:"-"`
	UserAgent         string     `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Snapshot is the caller-facing view of an account. Credentials and pending
// tokens are never part of it.
type Snapshot struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Role       string     `json:"role"`
	IsVerified bool       `json:"is_verified"`
	IsActive   bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (a *Account) ToSnapshot() *Snapshot {
	return &Snapshot{
		ID:         a.ID,
		Email:      a.Email,
		Phone:      a.Phone,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Role:       a.Role,
		IsVerified: a.IsVerified,
		IsActive:   a.IsActive,
		LastLogin:  a.LastLogin,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// ClientMeta carries audit data captured at registration time.
type ClientMeta struct {
	IP        string
	UserAgent string
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	Account *Snapshot `json:"user"`
}

type RegisterResponse struct {
	Message              string    `json:"message"`
	Account              *Snapshot `json:"user"`
	RequiresVerification bool      `json:"requires_verification"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Token types held in the token store.
const (
	TokenTypeEmailVerification = "email_verification"
	TokenTypePasswordReset     = "password_reset"
)

// TokenPayload is the transient record a verification or reset token maps to.
// Expiry is tracked in the payload so the service can distinguish an expired
// token from an unknown one.
type TokenPayload struct {
	Email     string    `json:"email"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p *TokenPayload) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Valid account roles
const (
	RoleApplicant = "applicant"
	RoleAdmin     = "admin"
	RoleAdvisor   = "advisor"
	RoleClient    = "client"
)

var validRoles = map[string]bool{
	RoleApplicant: true,
	RoleAdmin:     true,
	RoleAdvisor:   true,
	RoleClient:    true,
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigitRegex = regexp.MustCompile(`\D`)
)

// NormalizeEmail lowercases and trims an email for use as the directory key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips every non-digit character.
func NormalizePhone(phone string) string {
	return nonDigitRegex.ReplaceAllString(phone, "")
}

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Phone = NormalizePhone(r.Phone)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

func (r *RegisterRequest) Validate() error {
	if r.FirstName == "" {
		return ErrValidation("first name is required", "first_name")
	}
	if r.LastName == "" {
		return ErrValidation("last name is required", "last_name")
	}
	if r.Email == "" {
		return ErrValidation("email is required", "email")
	}
	if !isValidEmail(r.Email) {
		return ErrValidation("invalid email format", "email")
	}
	if r.Password == "" {
		return ErrValidation("password is required", "password")
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return ErrValidation("email is required", "email")
	}
	if r.Password == "" {
		return ErrValidation("password is required", "password")
	}
	return nil
}
