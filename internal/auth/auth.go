// Package auth provides credential verification against the user store.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tpbot/gateway/internal/store"
)

// ErrNotFound is returned by UpdateProfile when the username does not exist.
var ErrNotFound = errors.New("user not found")

// UserRecord is the identity returned by a successful authentication.
type UserRecord struct {
	Username string
	Name     string
	Role     string
}

// Service handles authentication operations.
type Service struct {
	store store.Store
}

// NewService creates a new auth service.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Authenticate verifies username/password against the store. It returns
// (nil, nil) for bad credentials and a non-nil error only for store failures.
//
// An unknown username, or one whose password hash was cleared, is provisioned
// as a guest account with the presented password: clearing the hash is the
// password-reset path, and logging in under a fresh username creates the
// account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*UserRecord, error) {
	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if u == nil || u.PasswordHash == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		id := uuid.New().String()
		if u != nil {
			id = u.ID
		}
		if err := s.store.ProvisionGuest(ctx, id, username, string(hash)); err != nil {
			return nil, fmt.Errorf("provision guest: %w", err)
		}
		return &UserRecord{Username: username, Name: "New User", Role: "guest"}, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}

	return &UserRecord{Username: u.Username, Name: u.Name, Role: u.Role}, nil
}

// UpdateProfile changes the display name and/or password for username.
// Nil fields keep their stored values. Returns ErrNotFound for an unknown
// username.
func (s *Service) UpdateProfile(ctx context.Context, username string, name, password *string) error {
	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return ErrNotFound
	}

	newName := u.Name
	if name != nil {
		newName = *name
	}

	newHash := u.PasswordHash
	if password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		h := string(hash)
		newHash = &h
	}

	if err := s.store.UpdateUser(ctx, username, newName, newHash); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
