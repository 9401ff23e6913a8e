package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"chatserver/internal/domain"
	"chatserver/internal/security"
)

// AuthService handles signup, login, and admin seeding. Account management
// is a collaborator of the realtime core: the core only consumes it to
// resolve identities and roles.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
	}
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
	Gender   string
}

type LoginInput struct {
	Email    string
	Password string
}

type TokenResponse struct {
	AccessToken string
	User        *domain.User
}

// Signup creates a regular user account. The role is always "user": the
// single admin account is seeded at startup, never registered.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*TokenResponse, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", domain.ErrValidation)
	}

	email := strings.ToLower(in.Email)

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:           in.Name,
		Email:          email,
		HashedPassword: hashed,
		Gender:         in.Gender,
		Role:           domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.CreateForUser(user.ID, user.Role, user.Name)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &TokenResponse{AccessToken: token, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(in.Email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: invalid email or password", domain.ErrValidation)
	}
	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", domain.ErrValidation)
	}

	token, err := s.tokens.CreateForUser(user.ID, user.Role, user.Name)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &TokenResponse{AccessToken: token, User: user}, nil
}

// SeedAdmin ensures the single admin account exists. The design requires
// exactly one admin identity; a second admin is rejected rather than
// silently tolerated.
func (s *AuthService) SeedAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: admin email and password are required", domain.ErrValidation)
	}

	admin, err := s.users.GetAdmin(ctx)
	if err != nil {
		return fmt.Errorf("get admin: %w", err)
	}
	if admin != nil {
		if admin.Email != strings.ToLower(email) {
			return fmt.Errorf("%w: an admin account already exists", domain.ErrConflict)
		}
		log.Debug().Str("admin", admin.ID).Msg("admin already seeded")
		return nil
	}

	hashed, err := s.hash.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Name:           name,
		Email:          strings.ToLower(email),
		HashedPassword: hashed,
		Role:           domain.RoleAdmin,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}
	log.Info().Str("admin", user.ID).Msg("admin user created")
	return nil
}
