// Package auth contains the authentication primitives: the password
// hasher, the JWT codec, and the role-based permission check. All of it is
// pure and safe for concurrent use.
package auth

import (
	"errors"
	"time"

	"github.com/dsmirnov82/authuser/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token claims set: the login identifier and the role names
// held at issuance, plus the registered expiry. The password hash is never
// embedded.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// GenerateToken signs a claims set for email with HS256 and an expiry of
// now+validityDuration. Access and refresh tokens differ only in duration.
func GenerateToken(email string, roles []string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Email: email,
		Roles: roles,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies signature and expiry atomically and returns the
// embedded claims. Failures are distinguished for logging:
//
//   - common.ErrTokenExpired for a valid signature past its expiry
//   - common.ErrTokenMalformed for non-parseable input
//   - common.ErrInvalidToken for a bad signature or anything else
//
// Callers outside the auth service must not leak the distinction.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, common.ErrTokenMalformed
		default:
			return nil, common.ErrInvalidToken
		}
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
