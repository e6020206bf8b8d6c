package users

import (
	"context"

	"github.com/dsmirnov82/authuser/internal/server/models"
)

// Patch describes a partial user update. Nil fields are left unchanged.
// Password, when set, must already be hashed by the caller.
type Patch struct {
	Name     *string
	Email    *string
	Password *string
	Age      *int
}

// Repository is the persistence contract for users and their roles.
// Implementations must provide read-your-writes consistency within a single
// logical operation.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByLogin(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDForUpdate locks the user row for the remainder of the enclosing
	// transaction so role mutations are an atomic read-modify-write.
	GetByIDForUpdate(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, patch *Patch) (*models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, skip, limit int) ([]*models.User, error)

	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	AddRole(ctx context.Context, userID string, roleID int64) error
	RemoveRole(ctx context.Context, userID string, roleID int64) error
}
