package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL store and runs migrations.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255),
			name VARCHAR(255) NOT NULL DEFAULT 'New User',
			role VARCHAR(50) NOT NULL DEFAULT 'guest',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, name, role, created_at FROM users WHERE username = $1",
		username,
	).Scan(&u.ID, &u.Username, &hash, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	return &u, nil
}

func (s *PostgresStore) ProvisionGuest(ctx context.Context, id, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, name, role)
		 VALUES ($1, $2, $3, 'New User', 'guest')
		 ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		id, username, passwordHash,
	)
	return err
}

func (s *PostgresStore) UpdateUser(ctx context.Context, username, name string, passwordHash *string) error {
	var hash sql.NullString
	if passwordHash != nil {
		hash = sql.NullString{String: *passwordHash, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET name = $1, password_hash = $2 WHERE username = $3",
		name, hash, username,
	)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
