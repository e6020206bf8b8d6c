package repomanager

import (
	"context"
	"database/sql"

	"github.com/dsmirnov82/authuser/internal/dbx"
	"github.com/dsmirnov82/authuser/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a
// transaction handle, plus a schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
