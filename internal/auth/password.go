// Package auth hashes passwords and issues session tokens.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong password and for an unknown
// email alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrPasswordTooLong is returned by HashPassword for passwords bcrypt cannot
// hash.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// hashCost is lowered in tests.
var hashCost = bcrypt.DefaultCost

// dummyHash is compared against when the user does not exist so that both
// failure paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("howdo: no such user"), hashCost)
	if err != nil {
		panic(fmt.Sprintf("generating dummy hash: %v", err))
	}
	return h
})

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %w", ErrPasswordTooLong, err)
	}
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// CheckPassword returns nil when password matches hash and
// ErrInvalidCredentials otherwise.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// RejectUnknownUser burns one comparison against a fixed hash and always
// returns ErrInvalidCredentials.
func RejectUnknownUser(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
	return ErrInvalidCredentials
}
