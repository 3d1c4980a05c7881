package seed

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/ahmedmhosni/roastify/internal/auth"
	"github.com/ahmedmhosni/roastify/internal/domain"
)

const (
	generatedPasswordLength = 20
	passwordAlphabet        = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#%*-_"
	minPasswordLength       = 8
)

// UserUpserter is the part of the user repository seeding needs.
type UserUpserter interface {
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
}

// AdminRequest describes the admin account to create or reset.
type AdminRequest struct {
	Email    string
	Name     string
	Password string
}

// Credentials are returned so the caller can show them once.
type Credentials struct {
	User      domain.User
	Password  string
	Generated bool
}

// Admin creates the admin account, or resets name, password and role when the email exists.
func Admin(ctx context.Context, users UserUpserter, req AdminRequest) (Credentials, error) {
	email := domain.NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Credentials{}, fmt.Errorf("invalid email %q: %w", req.Email, err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Credentials{}, errors.New("name is required")
	}

	password := req.Password
	generated := false
	if password == "" {
		var err error
		password, err = GeneratePassword(generatedPasswordLength)
		if err != nil {
			return Credentials{}, err
		}
		generated = true
	}
	if len(password) < minPasswordLength {
		return Credentials{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Credentials{}, err
	}

	user, err := users.Upsert(ctx, domain.NewUser(email, name, hash, domain.RoleAdmin, time.Now().UTC()))
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to save admin: %w", err)
	}
	return Credentials{User: user, Password: password, Generated: generated}, nil
}

// GeneratePassword returns a random password drawn from an unambiguous alphabet.
func GeneratePassword(length int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}
