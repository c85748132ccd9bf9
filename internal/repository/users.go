package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mpetrova/library-system/internal/model"
)

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, real_name, email, user_type, branch_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		u.Login, u.PasswordHash, u.RealName, u.Email, string(u.Type), u.BranchID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, real_name, email, user_type, branch_id, created_at
		 FROM users WHERE login = $1`,
		login,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, real_name, email, user_type, branch_id, created_at
		 FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var userType string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.RealName, &u.Email, &userType, &u.BranchID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Type = model.UserType(userType)
	return &u, nil
}
