package service

import (
	"context"
	"fmt"

	"chatserver/internal/domain"
)

// UserService exposes the user lookups the HTTP surface needs.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListAll(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListAll(ctx)
}

// GetAdmin returns the single admin account.
func (s *UserService) GetAdmin(ctx context.Context) (*domain.User, error) {
	admin, err := s.users.GetAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, fmt.Errorf("%w: admin not found", domain.ErrNotFound)
	}
	return admin, nil
}
