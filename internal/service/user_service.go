package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"librarydrive/internal/domain"
	"librarydrive/internal/repository"
)

// UserService управляет профилями пользователей. Учетные записи
// заводятся провайдером идентификации; здесь хранится только профиль.
type UserService struct {
	userRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Create создает профиль, если его еще нет. Повторный вызов
// возвращает уже существующий профиль без изменений.
func (s *UserService) Create(ctx context.Context, input domain.UserCreate) (*domain.User, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	user := &domain.User{
		UserID:   input.UserID,
		Email:    input.Email,
		Nickname: input.Nickname,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	created, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get created user: %w", err)
	}
	return created, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	if upd.Nickname != nil && *upd.Nickname != "" {
		current, err := s.userRepo.GetByID(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		// Занятость никнейма проверяется только при его смене
		if err == nil && (current.Nickname == nil || *current.Nickname != *upd.Nickname) {
			available, err := s.userRepo.NicknameAvailable(ctx, *upd.Nickname)
			if err != nil {
				return nil, err
			}
			if !available {
				return nil, fmt.Errorf("%w: nickname is already taken", ErrValidation)
			}
		}
	}

	user, err := s.userRepo.Update(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, skip, limit int) ([]domain.User, int, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	users, err := s.userRepo.List(ctx, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *UserService) NicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	if nickname == "" {
		return false, fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	return s.userRepo.NicknameAvailable(ctx, nickname)
}
