package users

import "github.com/jackc/pgx/v5/pgconn"

// fakePgError builds a *pgconn.PgError with the given SQLSTATE code, the way
// the driver reports constraint violations.
func fakePgError(code string) error {
	return &pgconn.PgError{Code: code}
}
