package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dsmirnov82/authuser/internal/common"
	"github.com/dsmirnov82/authuser/internal/dbx"
	"github.com/dsmirnov82/authuser/internal/logging"
	"github.com/dsmirnov82/authuser/internal/server/auth"
	"github.com/dsmirnov82/authuser/internal/server/models"
	"github.com/dsmirnov82/authuser/internal/server/repositories/repomanager"
	"github.com/dsmirnov82/authuser/internal/server/repositories/users"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// CreateUserParams carries the registration input. Password is plaintext
// and is hashed before it reaches the repository.
type CreateUserParams struct {
	Name     string
	Email    string
	Password string
	Age      int
}

// UpdateUserParams is a partial update; nil fields are left unchanged.
type UpdateUserParams struct {
	Name     *string
	Email    *string
	Password *string
	Age      *int
}

// UserWithToken is returned by Create and Update: the public view plus a
// freshly issued access token reflecting the user's current claims.
type UserWithToken struct {
	User        *models.PublicUser `json:"user"`
	AccessToken string             `json:"access_token"`
}

// UsersService implements user CRUD and role mutation on top of the
// persistence layer, delegating hashing and token issuance to AuthService.
type UsersService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	auth   *AuthService
	logger logging.Logger
}

// NewUsersService constructs a UsersService.
func NewUsersService(db *sql.DB, m repomanager.RepositoryManager, a *AuthService, logger logging.Logger) *UsersService {
	return &UsersService{
		db:     db,
		repos:  m,
		auth:   a,
		logger: logger.With("module", "users_service"),
	}
}

// Create registers a new user with the default USER role and returns the
// public view plus an access token. A duplicate login identifier fails with
// common.ErrConflict; a missing default role row is common.ErrConfig.
func (s *UsersService) Create(ctx context.Context, p CreateUserParams) (*UserWithToken, error) {
	if p.Email == "" || p.Password == "" {
		return nil, common.ErrInvalidInput
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Name:     p.Name,
		Email:    p.Email,
		Password: hash,
		Age:      p.Age,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		role, err := repo.GetRoleByName(ctx, models.RoleUser)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("default role %q not provisioned: %w", models.RoleUser, common.ErrConfig)
			}
			return err
		}

		if _, err := repo.Create(ctx, user); err != nil {
			return err
		}
		if err := repo.AddRole(ctx, user.ID, role.ID); err != nil {
			return err
		}

		user.Roles = []string{role.Name}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "create user", err)
	}

	token, err := s.auth.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user created", "user_id", user.ID, "email", user.Email)
	return &UserWithToken{User: user.Public(), AccessToken: token}, nil
}

// Update applies a partial patch. When the login identifier changes, the
// same conflict check as registration applies; a plaintext password in the
// patch is re-hashed.
func (s *UsersService) Update(ctx context.Context, id string, p UpdateUserParams) (*UserWithToken, error) {
	patch := &users.Patch{Name: p.Name, Email: p.Email, Age: p.Age}

	if p.Password != nil {
		hash, err := auth.HashPassword(*p.Password)
		if err != nil {
			return nil, err
		}
		patch.Password = &hash
	}

	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		if p.Email != nil {
			existing, err := repo.GetByLogin(ctx, *p.Email)
			if err == nil && existing.ID != id {
				return common.ErrConflict
			}
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}

		var err error
		updated, err = repo.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, s.classify(ctx, "update user", err)
	}

	token, err := s.auth.IssueAccessToken(updated)
	if err != nil {
		return nil, err
	}

	return &UserWithToken{User: updated.Public(), AccessToken: token}, nil
}

// Delete removes the user and returns the prior state.
func (s *UsersService) Delete(ctx context.Context, id string) (*models.PublicUser, error) {
	var prior *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		var err error
		prior, err = repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return nil, s.classify(ctx, "delete user", err)
	}

	s.logger.Info(ctx, "user deleted", "user_id", id)
	return prior.Public(), nil
}

// GetByID returns the public view of a single user.
func (s *UsersService) GetByID(ctx context.Context, id string) (*models.PublicUser, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, s.classify(ctx, "get user", err)
	}
	return user.Public(), nil
}

// List returns public views with offset/limit pagination, ordered stably by
// the persistence layer.
func (s *UsersService) List(ctx context.Context, skip, limit int) ([]*models.PublicUser, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	list, err := s.repos.Users(s.db).List(ctx, skip, limit)
	if err != nil {
		return nil, s.classify(ctx, "list users", err)
	}

	out := make([]*models.PublicUser, 0, len(list))
	for _, u := range list {
		out = append(out, u.Public())
	}
	return out, nil
}

// Roles returns the user's current role names.
func (s *UsersService) Roles(ctx context.Context, id string) ([]string, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, s.classify(ctx, "get user roles", err)
	}
	return user.Roles, nil
}

// AddRole grants a provisioned role to the user. The read-modify-write runs
// in a transaction with the user row locked, so concurrent mutations on the
// same user cannot lose updates.
func (s *UsersService) AddRole(ctx context.Context, id, roleName string) ([]string, error) {
	var roles []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		role, err := repo.GetRoleByName(ctx, roleName)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("role %q not provisioned: %w", roleName, common.ErrConfig)
			}
			return err
		}

		user, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if user.HasRole(role.Name) {
			return common.ErrAlreadyAssigned
		}

		if err := repo.AddRole(ctx, user.ID, role.ID); err != nil {
			return err
		}

		roles = append(user.Roles, role.Name)
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "add role", err)
	}

	s.logger.Info(ctx, "role added", "user_id", id, "role", roleName)
	return roles, nil
}

// RemoveRole revokes a role. A single-role user always fails with
// common.ErrLastRole regardless of which role is named; otherwise removing
// a role the user does not hold fails with common.ErrNotAssigned. Neither
// failure mutates state.
func (s *UsersService) RemoveRole(ctx context.Context, id, roleName string) ([]string, error) {
	var roles []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		role, err := repo.GetRoleByName(ctx, roleName)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("role %q not provisioned: %w", roleName, common.ErrConfig)
			}
			return err
		}

		user, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if len(user.Roles) == 1 {
			return common.ErrLastRole
		}
		if !user.HasRole(role.Name) {
			return common.ErrNotAssigned
		}

		if err := repo.RemoveRole(ctx, user.ID, role.ID); err != nil {
			return err
		}

		roles = make([]string, 0, len(user.Roles)-1)
		for _, r := range user.Roles {
			if r != role.Name {
				roles = append(roles, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "remove role", err)
	}

	s.logger.Info(ctx, "role removed", "user_id", id, "role", roleName)
	return roles, nil
}

// classify passes domain sentinels through unchanged and collapses anything
// else into common.ErrInternal after logging it.
func (s *UsersService) classify(ctx context.Context, op string, err error) error {
	for _, sentinel := range []error{
		common.ErrNotFound, common.ErrConflict, common.ErrConfig,
		common.ErrAlreadyAssigned, common.ErrNotAssigned, common.ErrLastRole,
		common.ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	s.logger.Error(ctx, op+" failed", "error", err)
	return common.ErrInternal
}
