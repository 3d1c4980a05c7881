package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmedmhosni/roastify/internal/domain"
	"github.com/ahmedmhosni/roastify/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserLookup is the part of the user repository login needs.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

// Service checks credentials and issues tokens.
type Service struct {
	users  UserLookup
	issuer *Issuer
}

// NewService creates a login service.
func NewService(users UserLookup, issuer *Issuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Login verifies the password against the stored bcrypt hash and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	if email == "" || password == "" {
		return Token{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return s.issuer.Issue(Principal{UserID: user.ID, Role: user.Role})
}

// HashPassword hashes a password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
