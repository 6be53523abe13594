package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codocs/internal/user/model"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"github.com/lib/pq"
)

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("user: %w", apperror.Invalid(err))
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users (id, username, avatar, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.Avatar, u.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create user %s: %v", u.ID, err)
		return apperror.Upstream("insert user", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, "SELECT id, username, avatar, created_at FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Username, &u.Avatar, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user %s", id)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user %s: %v", id, err)
		return nil, apperror.Upstream("select user", err)
	}
	return &u, nil
}

// FindByIDs returns the users that exist among ids, in no particular order.
func (r *PostgresRepository) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	rows, err := r.DB.QueryContext(ctx, "SELECT id, username, avatar, created_at FROM users WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		logger.Sugar.Errorf("Failed to get users: %v", err)
		return nil, apperror.Upstream("select users", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, len(ids))
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar, &u.CreatedAt); err != nil {
			return nil, apperror.Upstream("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Upstream("iterate users", err)
	}
	return users, nil
}
