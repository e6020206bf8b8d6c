// Package services contains server-side business logic. This file implements
// AuthService: credential verification, JWT issuance, token-based identity
// resolution, and password reset.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dsmirnov82/authuser/internal/common"
	"github.com/dsmirnov82/authuser/internal/logging"
	"github.com/dsmirnov82/authuser/internal/server/auth"
	"github.com/dsmirnov82/authuser/internal/server/config"
	"github.com/dsmirnov82/authuser/internal/server/models"
	"github.com/dsmirnov82/authuser/internal/server/repositories/repomanager"
	"github.com/dsmirnov82/authuser/internal/server/repositories/users"
)

// TokenPair bundles a short-lived access token and a longer-lived refresh
// token. Both are signed with the same secret and carry the same claims
// shape; only the TTL differs.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService provides authentication-related operations:
//   - Login: verify credentials and mint a token pair
//   - ResolveIdentity: map a bearer token back to the current user record
//   - Refresh: mint a fresh access token from a refresh token
//   - ResetPassword: change the caller's own password
//
// Tokens are stateless: validity is a function of signature and expiry only,
// so nothing here keeps per-session state and every method is safe to call
// concurrently.
type AuthService struct {
	db                           *sql.DB
	repos                        repomanager.RepositoryManager
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:                           db,
		repos:                        m,
		logger:                       logger.With("module", "auth_service"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Login looks up the user by login identifier (exact match as stored),
// verifies the password, and returns a fresh access/refresh pair. Claims are
// built from the public projection: login identifier plus role names, never
// the hash.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.GetByLogin(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "login lookup failed", "error", err)
		return nil, common.ErrInternal
	}

	if !auth.VerifyPassword(password, user.Password) {
		s.logger.Warn(ctx, "wrong password", "email", email)
		return nil, common.ErrWrongPassword
	}

	return s.issueTokenPair(user)
}

// ResolveIdentity decodes the token and re-fetches the current user record,
// so role and credential changes since issuance are honored. Any codec
// failure is logged with its concrete kind and reported uniformly as
// common.ErrUnauthorized; a user that no longer exists is common.ErrNotFound.
func (s *AuthService) ResolveIdentity(ctx context.Context, token string) (*models.User, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		s.logger.Warn(ctx, "token rejected", "reason", err)
		return nil, common.ErrUnauthorized
	}

	user, err := s.repos.Users(s.db).GetByLogin(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "identity lookup failed", "error", err)
		return nil, common.ErrInternal
	}

	return user, nil
}

// Refresh resolves the identity behind a refresh token and re-issues a fresh
// access token. The old access token stays valid until its own expiry
// (stateless design, no revocation).
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	user, err := s.ResolveIdentity(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrInternal) {
			return "", err
		}
		return "", common.ErrUnauthorized
	}

	return s.IssueAccessToken(user)
}

// ResetPassword resolves the identity behind the token, hashes newPassword,
// persists it, and returns the updated public view.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (*models.PublicUser, error) {
	user, err := s.ResolveIdentity(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrInternal) {
			return nil, err
		}
		return nil, common.ErrUnauthorized
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	updated, err := s.repos.Users(s.db).Update(ctx, user.ID, &users.Patch{Password: &hash})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "password update failed", "error", err)
		return nil, common.ErrInternal
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return updated.Public(), nil
}

// IssueAccessToken mints a short-lived access token for the given user.
func (s *AuthService) IssueAccessToken(user *models.User) (string, error) {
	token, err := auth.GenerateToken(user.Email, user.Roles, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrInternal
	}
	return token, nil
}

func (s *AuthService) issueTokenPair(user *models.User) (*TokenPair, error) {
	access, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateToken(user.Email, user.Roles, s.jwtSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, common.ErrInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
