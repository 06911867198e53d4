package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/observability"
	"github.com/geocoder89/learnhub/internal/security"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, email, passwordHash, role string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type TokenIssuer interface {
	GenerateToken(userID, role string) (string, error)
}

type LoginResult struct {
	User  user.PublicUser `json:"user"`
	Token string          `json:"token"`
}

type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	prom   *observability.Prom
}

func NewAuthService(users UserStore, tokens TokenIssuer, prom *observability.Prom) *AuthService {
	return &AuthService{users: users, tokens: tokens, prom: prom}
}

// Register creates a plain user account. The lookup catches the common
// duplicate; the store's unique index catches the concurrent one.
func (s *AuthService) Register(ctx context.Context, email, password string) (u user.PublicUser, err error) {
	defer func() { s.prom.ObserveAuth("register", err) }()

	email = user.NormalizeEmail(email)

	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return user.PublicUser{}, ErrDuplicateAccount
	case !errors.Is(err, user.ErrNotFound):
		return user.PublicUser{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return user.PublicUser{}, ErrPasswordTooLong
		}
		return user.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, email, hash, user.RoleUser)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.PublicUser{}, ErrDuplicateAccount
		}
		return user.PublicUser{}, fmt.Errorf("create user: %w", err)
	}

	return created.Public(), nil
}

// Login verifies credentials and issues a session token carrying id and role.
func (s *AuthService) Login(ctx context.Context, email, password string) (res LoginResult, err error) {
	defer func() { s.prom.ObserveAuth("login", err) }()

	found, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := security.CheckPassword(found.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(found.ID, found.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{User: found.Public(), Token: token}, nil
}
