package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/h1bconnect/account-service/internal/domain"
	"github.com/h1bconnect/account-service/internal/hasher"
	"github.com/h1bconnect/account-service/internal/mailer"
	"github.com/h1bconnect/account-service/internal/repository"
	"github.com/h1bconnect/account-service/pkg/auth"
	"github.com/h1bconnect/account-service/pkg/config"
	"github.com/h1bconnect/account-service/pkg/events"
	"github.com/h1bconnect/account-service/pkg/logger"
)

type AccountService interface {
	Register(ctx context.Context, req *domain.RegisterRequest, meta domain.ClientMeta) (*domain.RegisterResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
	RefreshToken(ctx context.Context, accountID string) (string, error)
	GetProfile(ctx context.Context, accountID string) (*domain.Snapshot, error)
}

type accountService struct {
	accounts repository.AccountRepository
	tokens   repository.TokenStore
	mailer   mailer.Service
	events   events.Publisher
	hasher   hasher.Hasher
	config   *config.Config
}

func NewAccountService(
	accounts repository.AccountRepository,
	tokens repository.TokenStore,
	mailer mailer.Service,
	events events.Publisher,
	hasher hasher.Hasher,
	config *config.Config,
) AccountService {
	return &accountService{
		accounts: accounts,
		tokens:   tokens,
		mailer:   mailer,
		events:   events,
		hasher:   hasher,
		config:   config,
	}
}

func (s *accountService) Register(ctx context.Context, req *domain.RegisterRequest, meta domain.ClientMeta) (*domain.RegisterResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailExists()
	}

	if req.Phone != "" {
		existing, err := s.accounts.FindByPhone(ctx, req.Phone)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing phone: %w", err)
		}
		if existing != nil {
			return nil, domain.ErrPhoneExists()
		}
	}

	if err := domain.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verifyToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	account := &domain.Account{
		ID:                uuid.NewString(),
		Role:              domain.RoleApplicant,
		Email:             req.Email,
		Phone:             req.Phone,
		PasswordHash:      passwordHash,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		IsVerified:        false,
		IsActive:          true,
		VerificationToken: verifyToken,
		RegistrationIP:    meta.IP,
		UserAgent:         meta.UserAgent,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	payload := domain.TokenPayload{
		Email:     account.Email,
		Type:      domain.TokenTypeEmailVerification,
		ExpiresAt: time.Now().Add(s.config.Auth.EmailVerificationTTL),
	}
	if err := s.tokens.Put(ctx, verifyToken, payload, s.config.Auth.EmailVerificationTTL); err != nil {
		return nil, fmt.Errorf("failed to store verification token: %w", err)
	}

	// Registration stands even if the email cannot be delivered; the caller
	// can resend verification.
	verifyURL := s.buildVerificationURL(verifyToken)
	if err := s.mailer.SendVerificationEmail(account.Email, account.FirstName, verifyURL, verifyToken); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "account_id", account.ID)
	}

	s.publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	})

	return &domain.RegisterResponse{
		Message:              "Account created successfully! Please check your email to verify your account.",
		Account:              account.ToSnapshot(),
		RequiresVerification: true,
	}, nil
}

func (s *accountService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrInvalidCredentials(nil)
	}

	now := time.Now()

	if account.AccountLocked && account.LockUntil != nil {
		if now.Before(*account.LockUntil) {
			remaining := int(math.Ceil(account.LockUntil.Sub(now).Minutes()))
			msg := fmt.Sprintf("Account is temporarily locked. Try again in %d minutes.", remaining)
			return nil, domain.ErrAccountLocked(msg, *account.LockUntil)
		}

		// Lock has elapsed; clear it before re-evaluating the attempt.
		if err := s.accounts.ClearLock(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("failed to clear expired lock: %w", err)
		}
		account.AccountLocked = false
		account.LockUntil = nil
		account.LoginAttempts = 0
	}

	valid, err := s.hasher.Compare(req.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	if !valid {
		attempts, lockUntil, err := s.accounts.RecordFailedLogin(ctx, account.ID, s.config.Auth.MaxLoginAttempts, s.config.Auth.LockoutDuration)
		if err != nil {
			return nil, fmt.Errorf("failed to record login attempt: %w", err)
		}

		if attempts >= s.config.Auth.MaxLoginAttempts {
			if lockUntil != nil {
				s.publish(ctx, events.AccountLocked, events.AccountLockedEvent{
					AccountID: account.ID,
					Email:     account.Email,
					LockUntil: *lockUntil,
					Attempts:  attempts,
				})
			}
			return nil, domain.ErrAccountLockedAttempts()
		}

		remaining := s.config.Auth.MaxLoginAttempts - attempts
		return nil, domain.ErrInvalidCredentials(&remaining)
	}

	if !account.IsVerified {
		return nil, domain.ErrEmailNotVerified(account.Email)
	}

	if err := s.accounts.RecordLogin(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	account.LastLogin = &now

	token, err := auth.NewSessionToken(
		account.ID,
		account.Email,
		account.Role,
		account.IsVerified,
		s.config.Auth.JWTSecret,
		s.config.Auth.SessionTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	return &domain.LoginResponse{
		Message: "Login successful",
		Token:   token,
		Account: account.ToSnapshot(),
	}, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) error {
	// The token is only consumed once verification sticks; failure paths
	// leave it redeemable.
	payload, err := s.tokens.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to read verification token: %w", err)
	}
	if payload == nil || payload.Type != domain.TokenTypeEmailVerification {
		return domain.ErrInvalidToken("Invalid or expired verification token")
	}
	if payload.Expired(time.Now()) {
		if err := s.tokens.Delete(ctx, token); err != nil {
			logger.WarnContext(ctx, "Failed to delete expired verification token", "error", err)
		}
		return domain.ErrTokenExpired("Verification token has expired. Please request a new one.")
	}

	account, err := s.accounts.FindByEmail(ctx, payload.Email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return domain.ErrUserNotFound("User not found")
	}
	if account.IsVerified {
		return domain.ErrAlreadyVerified()
	}

	if err := s.accounts.MarkVerified(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to mark account verified: %w", err)
	}
	if err := s.tokens.Delete(ctx, token); err != nil {
		logger.WarnContext(ctx, "Failed to delete redeemed verification token", "error", err, "account_id", account.ID)
	}

	s.publish(ctx, events.AccountVerified, events.AccountVerifiedEvent{
		AccountID:  account.ID,
		Email:      account.Email,
		VerifiedAt: time.Now(),
	})

	return nil
}

func (s *accountService) ResendVerification(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return domain.ErrUserNotFound("No account found with this email address")
	}
	if account.IsVerified {
		return domain.ErrAlreadyVerified()
	}

	// Rotate: the previous token stops working once a new one is minted.
	if account.VerificationToken != "" {
		if err := s.tokens.Delete(ctx, account.VerificationToken); err != nil {
			logger.WarnContext(ctx, "Failed to delete previous verification token", "error", err, "account_id", account.ID)
		}
	}

	verifyToken, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	payload := domain.TokenPayload{
		Email:     account.Email,
		Type:      domain.TokenTypeEmailVerification,
		ExpiresAt: time.Now().Add(s.config.Auth.EmailVerificationTTL),
	}
	if err := s.tokens.Put(ctx, verifyToken, payload, s.config.Auth.EmailVerificationTTL); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	if err := s.accounts.SetVerificationToken(ctx, account.ID, verifyToken); err != nil {
		return fmt.Errorf("failed to rotate verification token: %w", err)
	}

	verifyURL := s.buildVerificationURL(verifyToken)
	if err := s.mailer.SendVerificationEmail(account.Email, account.FirstName, verifyURL, verifyToken); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	return nil
}

// ForgotPassword never discloses whether the email is registered: the caller
// receives the same acknowledgment either way.
func (s *accountService) ForgotPassword(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil
	}

	resetToken, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	payload := domain.TokenPayload{
		Email:     account.Email,
		Type:      domain.TokenTypePasswordReset,
		ExpiresAt: time.Now().Add(s.config.Auth.PasswordResetTTL),
	}
	if err := s.tokens.Put(ctx, resetToken, payload, s.config.Auth.PasswordResetTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := s.buildResetURL(resetToken)
	if err := s.mailer.SendPasswordResetEmail(account.Email, account.FirstName, resetURL, resetToken); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	return nil
}

func (s *accountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	// Rejecting the password before touching the token keeps it redeemable
	// for the retry.
	if err := domain.ValidatePasswordLength(newPassword, "Password must be at least 8 characters long"); err != nil {
		return err
	}

	payload, err := s.tokens.Take(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if payload == nil || payload.Type != domain.TokenTypePasswordReset {
		return domain.ErrInvalidToken("Invalid or expired reset token")
	}
	if payload.Expired(time.Now()) {
		return domain.ErrTokenExpired("Reset token has expired. Please request a new one.")
	}

	account, err := s.accounts.FindByEmail(ctx, payload.Email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return domain.ErrUserNotFound("User not found")
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.publish(ctx, events.AccountPasswordChanged, events.AccountPasswordChangedEvent{
		AccountID: account.ID,
		Email:     account.Email,
		ChangedAt: time.Now(),
	})

	return nil
}

func (s *accountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return domain.ErrUserNotFound("User not found")
	}

	valid, err := s.hasher.Compare(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return domain.ErrInvalidCurrentPassword()
	}

	if err := domain.ValidatePasswordLength(newPassword, "New password must be at least 8 characters long"); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.publish(ctx, events.AccountPasswordChanged, events.AccountPasswordChangedEvent{
		AccountID: account.ID,
		Email:     account.Email,
		ChangedAt: time.Now(),
	})

	return nil
}

func (s *accountService) RefreshToken(ctx context.Context, accountID string) (string, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || !account.IsVerified {
		return "", domain.ErrInvalidUser()
	}

	token, err := auth.NewSessionToken(
		account.ID,
		account.Email,
		account.Role,
		account.IsVerified,
		s.config.Auth.JWTSecret,
		s.config.Auth.SessionTokenTTL,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	return token, nil
}

func (s *accountService) GetProfile(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrUserNotFound("User not found")
	}
	return account.ToSnapshot(), nil
}

// Helper methods

// publish is fire-and-forget: a bus failure is logged, never surfaced.
func (s *accountService) publish(ctx context.Context, subject string, data interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish account event", "error", err, "subject", subject)
	}
}

func (s *accountService) buildVerificationURL(token string) string {
	return fmt.Sprintf("%s/verify-email/%s", s.config.Server.FrontendURL, token)
}

func (s *accountService) buildResetURL(token string) string {
	return fmt.Sprintf("%s/reset-password/%s", s.config.Server.FrontendURL, token)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
