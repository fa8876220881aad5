// Package store defines the credential store interface for the gateway and
// provides SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tpbot/gateway/internal/config"
)

// Store is the persisted identity table behind authentication. Lookups return
// (nil, nil) for missing rows.
type Store interface {
	GetUser(ctx context.Context, username string) (*User, error)

	// ProvisionGuest inserts a guest record for username with the given
	// password hash, or resets the stored hash if the row already exists.
	// This is the login-auto-provisioning path.
	ProvisionGuest(ctx context.Context, id, username, passwordHash string) error

	// UpdateUser overwrites the display name and password hash for username.
	UpdateUser(ctx context.Context, username, name string, passwordHash *string) error

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// User is a row in the users table.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash *string   `json:"-"` // nil means "reset": next login sets a new one
	Name         string    `json:"name"` // defaults to "New User"
	Role         string    `json:"role"` // "admin", "user", "guest", or "llbe"
	CreatedAt    time.Time `json:"created_at"`
}

// New creates a Store from configuration.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "", "postgres":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
