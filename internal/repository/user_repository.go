package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"librarydrive/internal/domain"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	query := `SELECT * FROM users WHERE user_id = $1`

	err := r.db.GetContext(ctx, &user, query, userID)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Create создает запись пользователя. Повторный вызов для того же
// user_id безопасен: запись не перезаписывается.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (user_id, email, nickname, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, user.UserID, user.Email, user.Nickname, user.Status); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) Update(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error) {
	query := `
        UPDATE users
        SET email    = COALESCE($1, email),
            nickname = COALESCE($2, nickname),
            status   = COALESCE($3, status),
            updated_at = CURRENT_TIMESTAMP
        WHERE user_id = $4
        RETURNING *`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query, upd.Email, upd.Nickname, upd.Status, userID)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *UserRepository) List(ctx context.Context, skip, limit int) ([]domain.User, error) {
	users := make([]domain.User, 0)
	query := `SELECT * FROM users ORDER BY created_at DESC OFFSET $1 LIMIT $2`

	err := r.db.SelectContext(ctx, &users, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(user_id) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}

// NicknameAvailable проверяет, свободен ли никнейм
func (r *UserRepository) NicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	var count int
	query := `SELECT COUNT(user_id) FROM users WHERE nickname = $1`

	if err := r.db.GetContext(ctx, &count, query, nickname); err != nil {
		return false, fmt.Errorf("failed to check nickname: %w", err)
	}

	return count == 0, nil
}
