package store

import (
	"context"
	"errors"
	"testing"
)

// TestUsersRoundTrip tests create, list and single-user reads. The read
// paths must never expose the password column.
func TestUsersRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "henrik", "secret")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := s.CreateUser(ctx, "marcus", "moresecret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 || users[0].Username != "henrik" {
		t.Errorf("ListUsers = %v, want [henrik marcus]", users)
	}

	got, err := s.GetUser(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Username != "henrik" {
		t.Errorf("Username = %q, want henrik", got.Username)
	}

	if _, err := s.GetUser(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(999) = %v, want ErrNotFound", err)
	}
}

// TestLookupCredential tests the auth-only read path.
func TestLookupCredential(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "henrik", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	cred, err := s.LookupCredential(ctx, "henrik")
	if err != nil {
		t.Fatalf("LookupCredential failed: %v", err)
	}
	if cred.Password != "secret" {
		t.Errorf("Password = %q, want secret", cred.Password)
	}

	if _, err := s.LookupCredential(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupCredential(ghost) = %v, want ErrNotFound", err)
	}
}

// TestSeed tests that seeding populates users and tasks once, skips a
// populated database, and can be forced.
func TestSeed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Seed(ctx, false); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("seeded users = %d, want 2", len(users))
	}

	_, total, err := s.ListTasks(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if total == 0 {
		t.Fatal("seed created no tasks")
	}

	// Second run is a no-op on a populated database.
	if err := s.Seed(ctx, false); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}
	_, again, err := s.ListTasks(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if again != total {
		t.Errorf("task count after repeat seed = %d, want unchanged %d", again, total)
	}

	// Force doubles the tasks without duplicating users.
	if err := s.Seed(ctx, true); err != nil {
		t.Fatalf("forced Seed failed: %v", err)
	}
	_, forced, err := s.ListTasks(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if forced != 2*total {
		t.Errorf("task count after forced seed = %d, want %d", forced, 2*total)
	}
	users, _ = s.ListUsers(ctx)
	if len(users) != 2 {
		t.Errorf("users after forced seed = %d, want still 2", len(users))
	}
}
