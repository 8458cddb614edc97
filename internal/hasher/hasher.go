package hasher

import (
	"errors"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Hasher computes and verifies one-way password hashes. The plaintext is
// never stored or logged.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) (bool, error)
}

// DefaultBcryptCost matches the work factor the platform has always used for
// account passwords.
const DefaultBcryptCost = 14

type Bcrypt struct {
	Cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b *Bcrypt) Compare(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

type Argon2 struct {
	Params *argon2id.Params
}

func NewArgon2() *Argon2 {
	return &Argon2{Params: argon2id.DefaultParams}
}

func (a *Argon2) Hash(password string) (string, error) {
	return argon2id.CreateHash(password, a.Params)
}

func (a *Argon2) Compare(password, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, hash)
}

// New selects a hasher by configured algorithm name, defaulting to bcrypt.
func New(algo string, bcryptCost int) Hasher {
	switch algo {
	case "argon2id":
		return NewArgon2()
	default:
		return NewBcrypt(bcryptCost)
	}
}
