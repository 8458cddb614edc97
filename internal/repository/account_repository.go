package repository

import (
	"context"
	"time"

	"github.com/h1bconnect/account-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountRepository is the User Directory: the keyed store of account
// records. Find methods return (nil, nil) when no account matches.
// Mutations of the security counters are single atomic statements so
// concurrent operations on the same account never under-count or race.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)

	// RecordFailedLogin atomically increments the attempt counter, stamps the
	// attempt time, and applies the lock when the new count reaches
	// maxAttempts. Returns the post-increment count and the lock expiry when
	// the account is now locked.
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockFor time.Duration) (attempts int, lockUntil *time.Time, err error)

	// ClearLock resets the lock flags and attempt counter after an expired
	// lock is detected.
	ClearLock(ctx context.Context, id string) error

	// RecordLogin resets all attempt and lock state and stamps last_login.
	RecordLogin(ctx context.Context, id string) error

	// MarkVerified flips is_verified and clears the stored verification
	// token. Verification is monotonic.
	MarkVerified(ctx context.Context, id string) error

	SetVerificationToken(ctx context.Context, id, token string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type accountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountCols = `id, role, email, phone, password_hash, first_name, last_name,
	is_verified, is_active, login_attempts, last_login_attempt, account_locked,
	lock_until, last_login, verification_token, registration_ip, user_agent,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var phone, verificationToken, registrationIP, userAgent *string
	err := row.Scan(
		&a.ID, &a.Role, &a.Email, &phone, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.IsVerified, &a.IsActive, &a.LoginAttempts, &a.LastLoginAttempt, &a.AccountLocked,
		&a.LockUntil, &a.LastLogin, &verificationToken, &registrationIP, &userAgent,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if phone != nil {
		a.Phone = *phone
	}
	if verificationToken != nil {
		a.VerificationToken = *verificationToken
	}
	if registrationIP != nil {
		a.RegistrationIP = *registrationIP
	}
	if userAgent != nil {
		a.UserAgent = *userAgent
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	const q = `
		INSERT INTO accounts (id, role, email, phone, password_hash, first_name, last_name,
			is_verified, is_active, verification_token, registration_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q,
		a.ID, a.Role, a.Email, nullable(a.Phone), a.PasswordHash, a.FirstName, a.LastName,
		a.IsVerified, a.IsActive, nullable(a.VerificationToken), nullable(a.RegistrationIP), nullable(a.UserAgent),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE email = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, email))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) FindByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE phone = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	const q = `
		UPDATE accounts
		SET login_attempts = login_attempts + 1,
			last_login_attempt = now(),
			account_locked = login_attempts + 1 >= $2,
			lock_until = CASE
				WHEN login_attempts + 1 >= $2 THEN now() + make_interval(secs => $3)
				ELSE lock_until
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING login_attempts, lock_until`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	var lockUntil *time.Time
	err := r.pool.QueryRow(ctx, q, id, maxAttempts, lockFor.Seconds()).Scan(&attempts, &lockUntil)
	if err != nil {
		return 0, nil, err
	}
	return attempts, lockUntil, nil
}

func (r *accountRepository) ClearLock(ctx context.Context, id string) error {
	const q = `
		UPDATE accounts
		SET account_locked = false, lock_until = NULL, login_attempts = 0, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *accountRepository) RecordLogin(ctx context.Context, id string) error {
	const q = `
		UPDATE accounts
		SET login_attempts = 0, last_login_attempt = NULL, account_locked = false,
			lock_until = NULL, last_login = now(), updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *accountRepository) MarkVerified(ctx context.Context, id string) error {
	const q = `
		UPDATE accounts
		SET is_verified = true, verification_token = NULL, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) SetVerificationToken(ctx context.Context, id, token string) error {
	const q = `UPDATE accounts SET verification_token = $2, updated_at = now() WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, token)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
