package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dsmirnov82/authuser/internal/common"
	"github.com/dsmirnov82/authuser/internal/dbx"
	"github.com/dsmirnov82/authuser/internal/server/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isPgErr(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, name, email, password, age)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email, user.Password, user.Age).Scan(&user.CreatedAt)

	if err != nil {
		if isPgErr(err, pgUniqueViolation) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) getUser(ctx context.Context, where string, arg any, forUpdate bool) (*models.User, error) {
	query := `SELECT id, name, email, password, age, created_at FROM users WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Age, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	roles, err := r.getRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `email = $1`, email, false)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `id = $1`, id, false)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `id = $1`, id, true)
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch *Patch) (*models.User, error) {

	set := make([]string, 0, 4)
	args := make([]any, 0, 5)

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Password != nil {
		add("password", *patch.Password)
	}
	if patch.Age != nil {
		add("age", *patch.Age)
	}

	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING id, name, email, password, age, created_at`,
		strings.Join(set, ", "), len(args))

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Age, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if isPgErr(err, pgUniqueViolation) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	roles, err := r.getRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) List(ctx context.Context, skip, limit int) ([]*models.User, error) {

	query :=
		`SELECT id, name, email, password, age, created_at FROM users
		 ORDER BY created_at, id
		 OFFSET $1 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, limit)
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Age, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	for _, user := range users {
		roles, err := r.getRoles(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		user.Roles = roles
	}

	return users, nil
}

func (r *PostgresRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {

	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

func (r *PostgresRepository) AddRole(ctx context.Context, userID string, roleID int64) error {

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)

	if err != nil {
		if isPgErr(err, pgUniqueViolation) {
			return common.ErrAlreadyAssigned
		}
		if isPgErr(err, pgForeignKeyViolation) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) RemoveRole(ctx context.Context, userID string, roleID int64) error {

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotAssigned
	}

	return nil
}

func (r *PostgresRepository) getRoles(ctx context.Context, userID string) ([]string, error) {

	query :=
		`SELECT r.name FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.id
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return roles, nil
}
