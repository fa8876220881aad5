package store

import (
	"context"
	"testing"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetUser_Missing(t *testing.T) {
	s := setupStore(t)

	u, err := s.GetUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil for missing user, got %+v", u)
	}
}

func TestProvisionGuest_NewUser(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.ProvisionGuest(ctx, "id-1", "alice", "hash-1"); err != nil {
		t.Fatalf("ProvisionGuest failed: %v", err)
	}

	u, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil {
		t.Fatal("expected provisioned user")
	}
	if u.ID != "id-1" {
		t.Errorf("expected id %q, got %q", "id-1", u.ID)
	}
	if u.Name != "New User" {
		t.Errorf("expected name 'New User', got %q", u.Name)
	}
	if u.Role != "guest" {
		t.Errorf("expected role 'guest', got %q", u.Role)
	}
	if u.PasswordHash == nil || *u.PasswordHash != "hash-1" {
		t.Errorf("expected password hash 'hash-1', got %v", u.PasswordHash)
	}
}

func TestProvisionGuest_ExistingRowKeepsIdentity(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.ProvisionGuest(ctx, "id-1", "bob", "hash-1"); err != nil {
		t.Fatal(err)
	}
	// Rename, then re-provision with a fresh hash (the password-reset path).
	if err := s.UpdateUser(ctx, "bob", "Bob the Operator", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ProvisionGuest(ctx, "id-2", "bob", "hash-2"); err != nil {
		t.Fatal(err)
	}

	u, err := s.GetUser(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "id-1" {
		t.Errorf("re-provision must not replace the row id: got %q", u.ID)
	}
	if u.Name != "Bob the Operator" {
		t.Errorf("re-provision must not touch the name: got %q", u.Name)
	}
	if u.PasswordHash == nil || *u.PasswordHash != "hash-2" {
		t.Errorf("expected replaced hash 'hash-2', got %v", u.PasswordHash)
	}
}

func TestUpdateUser_NullPassword(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.ProvisionGuest(ctx, "id-1", "carol", "hash-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateUser(ctx, "carol", "Carol", nil); err != nil {
		t.Fatal(err)
	}

	u, err := s.GetUser(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash != nil {
		t.Errorf("expected cleared password hash, got %q", *u.PasswordHash)
	}
	if u.Name != "Carol" {
		t.Errorf("expected name 'Carol', got %q", u.Name)
	}
}
