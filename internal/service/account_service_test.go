package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/h1bconnect/account-service/internal/domain"
	"github.com/h1bconnect/account-service/internal/hasher"
	"github.com/h1bconnect/account-service/internal/service"
	"github.com/h1bconnect/account-service/pkg/auth"
	"github.com/h1bconnect/account-service/pkg/config"
)

// ---------- Mocks ----------

type mockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account // id -> account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (m *mockAccountRepo) Create(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *mockAccountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByPhone(_ context.Context, phone string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Phone != "" && a.Phone == phone {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *mockAccountRepo) RecordFailedLogin(_ context.Context, id string, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, nil, errors.New("no such account")
	}
	a.LoginAttempts++
	now := time.Now()
	a.LastLoginAttempt = &now
	if a.LoginAttempts >= maxAttempts {
		a.AccountLocked = true
		until := now.Add(lockFor)
		a.LockUntil = &until
	}
	var lockUntil *time.Time
	if a.LockUntil != nil {
		cp := *a.LockUntil
		lockUntil = &cp
	}
	return a.LoginAttempts, lockUntil, nil
}

func (m *mockAccountRepo) ClearLock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.AccountLocked = false
		a.LockUntil = nil
		a.LoginAttempts = 0
	}
	return nil
}

func (m *mockAccountRepo) RecordLogin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.LoginAttempts = 0
		a.LastLoginAttempt = nil
		a.AccountLocked = false
		a.LockUntil = nil
		now := time.Now()
		a.LastLogin = &now
	}
	return nil
}

func (m *mockAccountRepo) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.IsVerified = true
		a.VerificationToken = ""
	}
	return nil
}

func (m *mockAccountRepo) SetVerificationToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.VerificationToken = token
	}
	return nil
}

func (m *mockAccountRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.PasswordHash = passwordHash
	}
	return nil
}

// get returns the live stored record for assertions.
func (m *mockAccountRepo) get(id string) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]domain.TokenPayload
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]domain.TokenPayload)}
}

func (m *mockTokenStore) Put(_ context.Context, token string, payload domain.TokenPayload, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = payload
	return nil
}

func (m *mockTokenStore) Get(_ context.Context, token string) (*domain.TokenPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockTokenStore) Take(_ context.Context, token string) (*domain.TokenPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	delete(m.tokens, token)
	return &p, nil
}

func (m *mockTokenStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

// lastToken returns the only stored token, for flows that need to read the
// minted value the way a user reads their inbox.
func (m *mockTokenStore) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) != 1 {
		t.Fatalf("expected exactly one stored token, have %d", len(m.tokens))
	}
	for token := range m.tokens {
		return token
	}
	return ""
}

type mockMailer struct {
	mu             sync.Mutex
	verifyCount    int
	resetCount     int
	lastTo         string
	lastFirstName  string
	lastVerifyURL  string
	lastResetToken string
}

func (m *mockMailer) SendVerificationEmail(toEmail, firstName, verifyURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCount++
	m.lastTo = toEmail
	m.lastFirstName = firstName
	m.lastVerifyURL = verifyURL
	return nil
}

func (m *mockMailer) SendPasswordResetEmail(toEmail, firstName, resetURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCount++
	m.lastTo = toEmail
	m.lastFirstName = firstName
	m.lastResetToken = token
	return nil
}

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// ---------- Test setup ----------

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func setupService(t *testing.T) (service.AccountService, *mockAccountRepo, *mockTokenStore, *mockMailer, *mockPublisher) {
	t.Helper()
	accounts := newMockAccountRepo()
	tokens := newMockTokenStore()
	mail := &mockMailer{}
	bus := &mockPublisher{}
	// Minimum cost keeps the hashing fast in tests; production uses cost 14.
	svc := service.NewAccountService(accounts, tokens, mail, bus, hasher.NewBcrypt(4), testConfig())
	return svc, accounts, tokens, mail, bus
}

func register(t *testing.T, svc service.AccountService, email string) *domain.RegisterResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), &domain.RegisterRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     email,
		Password:  "Abcdef1!",
	}, domain.ClientMeta{IP: "203.0.113.9", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return resp
}

func verify(t *testing.T, svc service.AccountService, tokens *mockTokenStore) {
	t.Helper()
	if err := svc.VerifyEmail(context.Background(), tokens.lastToken(t)); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func authCode(t *testing.T, err error) string {
	t.Helper()
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	return authErr.Code
}

// ---------- Tests ----------

func TestRegister_Success(t *testing.T) {
	svc, accounts, tokens, mail, bus := setupService(t)

	resp := register(t, svc, "jane@example.com")

	if !resp.RequiresVerification {
		t.Fatal("expected requires_verification to be set")
	}
	if resp.Account.Email != "jane@example.com" {
		t.Fatalf("unexpected email %q", resp.Account.Email)
	}
	if resp.Account.IsVerified {
		t.Fatal("new account must start unverified")
	}
	if resp.Account.Role != domain.RoleApplicant {
		t.Fatalf("expected applicant role, got %q", resp.Account.Role)
	}

	stored := accounts.get(resp.Account.ID)
	if stored == nil {
		t.Fatal("account not persisted")
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "Abcdef1!" {
		t.Fatal("password must be stored as a hash")
	}
	if stored.RegistrationIP != "203.0.113.9" || stored.UserAgent != "test-agent" {
		t.Fatal("audit fields not captured")
	}

	if mail.verifyCount != 1 || mail.lastTo != "jane@example.com" {
		t.Fatalf("expected one verification email to the account, got %d to %q", mail.verifyCount, mail.lastTo)
	}
	if !strings.Contains(mail.lastVerifyURL, tokens.lastToken(t)) {
		t.Fatal("verification URL does not carry the minted token")
	}
	if len(bus.subjects) != 1 || bus.subjects[0] != "account.registered" {
		t.Fatalf("expected account.registered event, got %v", bus.subjects)
	}
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	register(t, svc, "jane@example.com")

	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "JANE@Example.COM",
		Password:  "Abcdef1!",
	}, domain.ClientMeta{})
	if authCode(t, err) != domain.CodeEmailExists {
		t.Fatalf("expected EMAIL_EXISTS, got %v", err)
	}
}

func TestRegister_DuplicatePhone(t *testing.T) {
	svc, _, _, _, _ := setupService(t)

	first := &domain.RegisterRequest{
		FirstName: "Jane", LastName: "Doe",
		Email: "jane@example.com", Password: "Abcdef1!",
		Phone: "+1 (555) 123-4567",
	}
	if _, err := svc.Register(context.Background(), first, domain.ClientMeta{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	second := &domain.RegisterRequest{
		FirstName: "John", LastName: "Doe",
		Email: "john@example.com", Password: "Abcdef1!",
		Phone: "15551234567", // same number, different formatting
	}
	_, err := svc.Register(context.Background(), second, domain.ClientMeta{})
	if authCode(t, err) != domain.CodePhoneExists {
		t.Fatalf("expected PHONE_EXISTS, got %v", err)
	}
}

func TestRegister_PasswordPolicy(t *testing.T) {
	svc, _, _, _, _ := setupService(t)

	tests := []struct {
		password string
		wantCode string
	}{
		{"abcdefgh", domain.CodePasswordTooWeak},
		{"Ab1!", domain.CodePasswordTooShort},
		{"Abcdefgh", domain.CodePasswordTooWeak},
	}

	for _, tt := range tests {
		_, err := svc.Register(context.Background(), &domain.RegisterRequest{
			FirstName: "Jane", LastName: "Doe",
			Email: "jane@example.com", Password: tt.password,
		}, domain.ClientMeta{})
		if authCode(t, err) != tt.wantCode {
			t.Fatalf("password %q: expected %s, got %v", tt.password, tt.wantCode, err)
		}
	}
}

func TestRegister_DuplicateEmailWinsOverWeakPassword(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	register(t, svc, "jane@example.com")

	// The duplicate check runs before the password policy.
	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		FirstName: "Jane", LastName: "Doe",
		Email: "jane@example.com", Password: "weakpass",
	}, domain.ClientMeta{})
	if authCode(t, err) != domain.CodeEmailExists {
		t.Fatalf("expected EMAIL_EXISTS for duplicate email with weak password, got %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _, _, _, _ := setupService(t)

	_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "nobody@example.com", Password: "Abcdef1!"})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Code != domain.CodeInvalidCredentials {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}
	// The generic message must not disclose whether the email exists.
	if strings.Contains(strings.ToLower(authErr.Message), "exist") {
		t.Fatalf("message leaks account existence: %q", authErr.Message)
	}
}

func TestLogin_UnverifiedCorrectPassword(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	register(t, svc, "jane@example.com")

	_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "jane@example.com", Password: "Abcdef1!"})
	if authCode(t, err) != domain.CodeEmailNotVerified {
		t.Fatalf("expected EMAIL_NOT_VERIFIED, got %v", err)
	}
}

func TestLogin_LockoutProgression(t *testing.T) {
	svc, accounts, tokens, _, bus := setupService(t)
	resp := register(t, svc, "jane@example.com")
	verify(t, svc, tokens)

	ctx := context.Background()
	bad := &domain.LoginRequest{Email: "jane@example.com", Password: "Wrong1!aa"}

	// Attempts 1-4: invalid credentials with a shrinking budget.
	for i := 1; i <= 4; i++ {
		_, err := svc.Login(ctx, bad)
		var authErr *domain.AuthError
		if !errors.As(err, &authErr) || authErr.Code != domain.CodeInvalidCredentials {
			t.Fatalf("attempt %d: expected INVALID_CREDENTIALS, got %v", i, err)
		}
		if authErr.AttemptsRemaining == nil || *authErr.AttemptsRemaining != 5-i {
			t.Fatalf("attempt %d: expected %d attempts remaining", i, 5-i)
		}
	}

	// Attempt 5 trips the lock.
	_, err := svc.Login(ctx, bad)
	if authCode(t, err) != domain.CodeAccountLockedAttempts {
		t.Fatalf("expected ACCOUNT_LOCKED_ATTEMPTS, got %v", err)
	}

	locked := false
	for _, subject := range bus.subjects {
		if subject == "account.locked" {
			locked = true
		}
	}
	if !locked {
		t.Fatal("expected account.locked event")
	}

	// Attempt 6 inside the window reports remaining lockout minutes.
	_, err = svc.Login(ctx, &domain.LoginRequest{Email: "jane@example.com", Password: "Abcdef1!"})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) || authErr.Code != domain.CodeAccountLocked {
		t.Fatalf("expected ACCOUNT_LOCKED, got %v", err)
	}
	if authErr.LockUntil == nil || !authErr.LockUntil.After(time.Now()) {
		t.Fatal("expected a future lock expiry")
	}
	if !strings.Contains(authErr.Message, "minutes") {
		t.Fatalf("expected remaining minutes in message, got %q", authErr.Message)
	}

	// Simulate the lock window elapsing.
	stored := accounts.get(resp.Account.ID)
	past := time.Now().Add(-time.Minute)
	accounts.mu.Lock()
	stored.LockUntil = &past
	accounts.mu.Unlock()

	// Correct password now succeeds and the counters reset.
	loginResp, err := svc.Login(ctx, &domain.LoginRequest{Email: "jane@example.com", Password: "Abcdef1!"})
	if err != nil {
		t.Fatalf("login after lock expiry failed: %v", err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected a session token")
	}

	stored = accounts.get(resp.Account.ID)
	if stored.LoginAttempts != 0 || stored.AccountLocked || stored.LockUntil != nil {
		t.Fatalf("expected lock state cleared, got attempts=%d locked=%v", stored.LoginAttempts, stored.AccountLocked)
	}
	if stored.LastLogin == nil {
		t.Fatal("expected last_login to be stamped")
	}
}

func TestLogin_ConcurrentFailuresNeverUndercount(t *testing.T) {
	svc, accounts, tokens, _, _ := setupService(t)
	resp := register(t, svc, "jane@example.com")
	verify(t, svc, tokens)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			svc.Login(context.Background(), &domain.LoginRequest{Email: "jane@example.com", Password: "Wrong1!aa"})
		}()
	}
	wg.Wait()

	// Late arrivals may observe the lock and skip recording, but every
	// recorded failure must count: at least the lock threshold, never more
	// than the number of attempts made.
	stored := accounts.get(resp.Account.ID)
	if stored.LoginAttempts < 5 || stored.LoginAttempts > workers {
		t.Fatalf("expected between 5 and %d recorded attempts, got %d", workers, stored.LoginAttempts)
	}
	if !stored.AccountLocked || stored.LockUntil == nil {
		t.Fatal("expected account to be locked after concurrent failures")
	}
}

func TestVerifyEmail_TokenIsSingleUse(t *testing.T) {
	svc, accounts, tokens, _, _ := setupService(t)
	resp := register(t, svc, "jane@example.com")
	token := tokens.lastToken(t)

	if err := svc.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	stored := accounts.get(resp.Account.ID)
	if !stored.IsVerified {
		t.Fatal("expected account to be verified")
	}
	if stored.VerificationToken != "" {
		t.Fatal("expected stored verification token to be cleared")
	}

	err := svc.VerifyEmail(context.Background(), token)
	if authCode(t, err) != domain.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN on reuse, got %v", err)
	}
}

func TestVerifyEmail_ExpiredThenInvalid(t *testing.T) {
	svc, _, tokens, _, _ := setupService(t)
	register(t, svc, "jane@example.com")

	tokens.Put(context.Background(), "stale-token", domain.TokenPayload{
		Email:     "jane@example.com",
		Type:      domain.TokenTypeEmailVerification,
		ExpiresAt: time.Now().Add(-time.Minute),
	}, 0)

	err := svc.VerifyEmail(context.Background(), "stale-token")
	if authCode(t, err) != domain.CodeTokenExpired {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}

	// Expiry detection deleted the record; the same token is now unknown.
	err = svc.VerifyEmail(context.Background(), "stale-token")
	if authCode(t, err) != domain.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN after expiry deletion, got %v", err)
	}
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	err := svc.VerifyEmail(context.Background(), "never-minted")
	if authCode(t, err) != domain.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN, got %v", err)
	}
}

func TestVerifyEmail_ResetTokenRejected(t *testing.T) {
	svc, _, tokens, _, _ := setupService(t)
	register(t, svc, "jane@example.com")

	tokens.Put(context.Background(), "reset-token", domain.TokenPayload{
		Email:     "jane@example.com",
		Type:      domain.TokenTypePasswordReset,
		ExpiresAt: time.Now().Add(time.Hour),
	}, time.Hour)

	err := svc.VerifyEmail(context.Background(), "reset-token")
	if authCode(t, err) != domain.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN for a reset token, got %v", err)
	}
}

func TestVerifyEmail_AlreadyVerifiedKeepsToken(t *testing.T) {
	svc, _, tokens, _, _ := setupService(t)
	register(t, svc, "jane@example.com")
	verify(t, svc, tokens)

	// A leftover token for an account that verified through another channel
	// is rejected without being consumed.
	tokens.Put(context.Background(), "leftover-token", domain.TokenPayload{
		Email:     "jane@example.com",
		Type:      domain.TokenTypeEmailVerification,
		ExpiresAt: time.Now().Add(time.Hour),
	}, time.Hour)

	for i := 0; i < 2; i++ {
		err := svc.VerifyEmail(context.Background(), "leftover-token")
		if authCode(t, err) != domain.CodeAlreadyVerified {
			t.Fatalf("attempt %d: expected ALREADY_VERIFIED, got %v", i+1, err)
		}
	}
}

func TestResendVerification(t *testing.T) {
	svc, accounts, tokens, mail, _ := setupService(t)
	resp := register(t, svc, "jane@example.com")
	oldToken := tokens.lastToken(t)

	if err := svc.ResendVerification(context.Background(), "Jane@Example.com"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if mail.verifyCount != 2 {
		t.Fatalf("expected 2 verification emails, got %d", mail.verifyCount)
	}

	// The old token was rotated out, not supplemented.
	err := svc.VerifyEmail(context.Background(), oldToken)
	if authCode(t, err) != domain.CodeInvalidToken {
		t.Fatalf("expected old token to be invalid after rotation, got %v", err)
	}

	newToken := tokens.lastToken(t)
	if newToken == oldToken {
		t.Fatal("expected a fresh token")
	}
	if accounts.get(resp.Account.ID).VerificationToken != newToken {
		t.Fatal("expected account to reference the fresh token")
	}
	if err := svc.VerifyEmail(context.Background(), newToken); err != nil {
		t.Fatalf("fresh token failed: %v", err)
	}

	// Already verified now.
	err = svc.ResendVerification(context.Background(), "jane@example.com")
	if authCode(t, err) != domain.CodeAlreadyVerified {
		t.Fatalf("expected ALREADY_VERIFIED, got %v", err)
	}
}

func TestResendVerification_UnknownEmail(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	err := svc.ResendVerification(context.Background(), "nobody@example.com")
	if authCode(t, err) != domain.CodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestForgotPassword_NoEnumeration(t *testing.T) {
	svc, _, _, mail, _ := setupService(t)
	register(t, svc, "jane@example.com")

	// Unknown email: identical success, no dispatch.
	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected generic success for unknown email, got %v", err)
	}
	if mail.resetCount != 0 {
		t.Fatal("no reset email may be sent for an unknown address")
	}

	// Known email: same success, one dispatch.
	if err := svc.ForgotPassword(context.Background(), "jane@example.com"); err != nil {
		t.Fatalf("expected success for known email, got %v", err)
	}
	if mail.resetCount != 1 || mail.lastTo != "jane@example.com" {
		t.Fatalf("expected one reset email, got %d to %q", mail.resetCount, mail.lastTo)
	}
}

func TestResetPassword_Success(t *testing.T) {
	svc, _, tokens, mail, _ := setupService(t)
	register(t, svc, "jane@example.com")
	verify(t, svc, tokens)

	if err := svc.ForgotPassword(context.Background(), "jane@example.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}

	if err := svc.ResetPassword(context.Background(), mail.lastResetToken, "Newpass1!"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// Old password no longer works, new one does.
	_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "jane@example.com", Password: "Abcdef1!"})
	if authCode(t, err) != domain.CodeInvalidCredentials {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "jane@example.com", Password: "Newpass1!"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestResetPassword_TooShort(t *testing.T) {
	svc, _, _, mail, _ := setupService(t)
	register(t, svc, "jane@example.com")
	if err := svc.ForgotPassword(context.Background(), "jane@example.com"); err != nil {
		t.Fatal(err)
	}

	err := svc.ResetPassword(context.Background(), mail.lastResetToken, "short")
	if authCode(t, err) != domain.CodePasswordTooShort {
		t.Fatalf("expected PASSWORD_TOO_SHORT, got %v", err)
	}
}

func TestResetPassword_WeakPasswordKeepsToken(t *testing.T) {
	svc, _, tokens, mail, _ := setupService(t)
	register(t, svc, "jane@example.com")
	verify(t, svc, tokens)
	if err := svc.ForgotPassword(context.Background(), "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	token := mail.lastResetToken

	// A rejected password must not burn the token.
	err := svc.ResetPassword(context.Background(), token, "short")
	if authCode(t, err) != domain.CodePasswordTooShort {
		t.Fatalf("expected PASSWORD_TOO_SHORT, got %v", err)
	}

	if err := svc.ResetPassword(context.Background(), token, "Newpass1!"); err != nil {
		t.Fatalf("retry with the same token failed: %v", err)
	}
	if _, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "jane@example.com", Password: "Newpass1!"}); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}
}

func TestResetPassword_ConcurrentExactlyOnce(t *testing.T) {
	svc, _, _, mail, _ := setupService(t)
	register(t, svc, "jane@example.com")
	if err := svc.ForgotPassword(context.Background(), "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	token := mail.lastResetToken

	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			results <- svc.ResetPassword(context.Background(), token, "Newpass1!")
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if authCode(t, err) == domain.CodeInvalidToken {
			rejected++
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one success and one INVALID_TOKEN, got %d/%d", succeeded, rejected)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, tokens, _, _ := setupService(t)
	resp := register(t, svc, "jane@example.com")
	verify(t, svc, tokens)

	if err := svc.ChangePassword(context.Background(), resp.Account.ID, "Wrong1!aa", "Newpass1!"); err != nil {
		if authCode(t, err) != domain.CodeInvalidCurrentPassword {
			t.Fatalf("expected INVALID_CURRENT_PASSWORD, got %v", err)
		}
	} else {
		t.Fatal("expected wrong current password to fail")
	}

	if err := svc.ChangePassword(context.Background(), resp.Account.ID, "Abcdef1!", "short"); authCode(t, err) != domain.CodePasswordTooShort {
		t.Fatalf("expected PASSWORD_TOO_SHORT, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), resp.Account.ID, "Abcdef1!", "Newpass1!"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "jane@example.com", Password: "Newpass1!"}); err != nil {
		t.Fatalf("login with changed password failed: %v", err)
	}
}

func TestChangePassword_UnknownAccount(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	err := svc.ChangePassword(context.Background(), "missing-id", "Abcdef1!", "Newpass1!")
	if authCode(t, err) != domain.CodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	svc, _, tokens, _, _ := setupService(t)
	resp := register(t, svc, "jane@example.com")

	// Unverified accounts cannot refresh.
	_, err := svc.RefreshToken(context.Background(), resp.Account.ID)
	if authCode(t, err) != domain.CodeInvalidUser {
		t.Fatalf("expected INVALID_USER for unverified account, got %v", err)
	}

	verify(t, svc, tokens)

	token, err := svc.RefreshToken(context.Background(), resp.Account.ID)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	claims, err := auth.Parse(token, "test-secret")
	if err != nil {
		t.Fatalf("refresh token unparsable: %v", err)
	}
	if claims.Sub != resp.Account.ID || !claims.IsVerified {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestGetProfile(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	resp := register(t, svc, "jane@example.com")

	snapshot, err := svc.GetProfile(context.Background(), resp.Account.ID)
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if snapshot.Email != "jane@example.com" {
		t.Fatalf("unexpected snapshot email %q", snapshot.Email)
	}

	_, err = svc.GetProfile(context.Background(), "missing-id")
	if authCode(t, err) != domain.CodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestRoundTrip_RegisterVerifyLogin(t *testing.T) {
	svc, _, tokens, _, _ := setupService(t)

	resp, err := svc.Register(context.Background(), &domain.RegisterRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "J@X.com",
		Password:  "Abcdef1!",
	}, domain.ClientMeta{})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := svc.VerifyEmail(context.Background(), tokens.lastToken(t)); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	loginResp, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "j@x.com", Password: "Abcdef1!"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	claims, err := auth.Parse(loginResp.Token, "test-secret")
	if err != nil {
		t.Fatalf("session token unparsable: %v", err)
	}
	if claims.Sub != resp.Account.ID {
		t.Fatalf("claims carry wrong account id: %q", claims.Sub)
	}
	if claims.Email != "j@x.com" {
		t.Fatalf("claims carry wrong email: %q", claims.Email)
	}
	if claims.Role != domain.RoleApplicant {
		t.Fatalf("claims carry wrong role: %q", claims.Role)
	}
}
