package local

import (
	"errors"

	"github.com/goliatone/go-union"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt cost for new hashes.
const DefaultPasswordCost = 12

// HashPassword generates a bcrypt hash for password.
func HashPassword(password string, cost int) (string, error) {
	if len(password) < union.MinPasswordLength {
		return "", union.ErrWeakPassword.Clone().WithMetadata(map[string]any{
			"min_length": union.MinPasswordLength,
		})
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", union.ErrWeakPassword.Clone().WithMetadata(map[string]any{
			"max_length": 72,
		})
	}
	return string(h), err
}

// ComparePasswordAndHash validates that password matches hash.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return union.ErrInvalidCredentials
		}
		return err
	}
	return nil
}

// dummyHash keeps sign in timing similar for unknown accounts.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
