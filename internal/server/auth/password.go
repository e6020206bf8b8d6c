package auth

import (
	"github.com/dsmirnov82/authuser/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt only reads the first 72 bytes of input; longer passwords are
// rejected instead of being silently truncated.
const maxPasswordBytes = 72

// HashPassword returns a salted bcrypt hash of password.
// Inputs longer than the bcrypt limit fail with common.ErrInvalidInput.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", common.ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored bcrypt hash.
// It returns false for any mismatch or malformed hash.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
