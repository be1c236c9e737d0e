package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shootday/internal/schedule"
)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the account access login and bootstrap need.
type UserStore interface {
	GetPhotographerByUsername(ctx context.Context, username string) (schedule.Photographer, error)
	UpsertPhotographer(ctx context.Context, p schedule.Photographer) (int64, error)
	HasAdmin(ctx context.Context) (bool, error)
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Authenticate checks a username and password against the store.
func Authenticate(ctx context.Context, users UserStore, username, password string) (schedule.Photographer, error) {
	p, err := users.GetPhotographerByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			return schedule.Photographer{}, ErrInvalidCredentials
		}
		return schedule.Photographer{}, err
	}
	if !p.Active || p.PasswordHash == "" {
		return schedule.Photographer{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return schedule.Photographer{}, ErrInvalidCredentials
	}
	return p, nil
}

// RoleOf maps an account to its token role.
func RoleOf(p schedule.Photographer) string {
	if p.IsAdmin {
		return RoleAdmin
	}
	return RolePhotographer
}

// Bootstrap creates the operator account when no admin exists yet. Running it
// again is a no-op; it reports whether an account was created.
func Bootstrap(ctx context.Context, users UserStore, username, password string, log *zap.Logger) (bool, error) {
	has, err := users.HasAdmin(ctx)
	if err != nil {
		return false, fmt.Errorf("bootstrap: check admin: %w", err)
	}
	if has {
		return false, nil
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return false, errors.New("bootstrap: admin username and password required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	id, err := users.UpsertPhotographer(ctx, schedule.Photographer{
		Name:         "Administrator",
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
		IsAdmin:      true,
		Active:       true,
	})
	if err != nil {
		return false, fmt.Errorf("bootstrap: create admin: %w", err)
	}
	log.Info("admin account created", zap.Int64("id", id), zap.String("username", username))
	return true, nil
}
