package service

import (
	"context"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
	"github.com/example/tgshopbot/internal/repository"
)

type UserService struct {
	users *repository.UserRepository
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// Ensure registers the user on first interaction.
func (s *UserService) Ensure(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.users.Ensure(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *UserService) Profile(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.users.FindByTelegramID(ctx, telegramID)
}

func (s *UserService) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	return s.users.ListTelegramIDs(ctx)
}
