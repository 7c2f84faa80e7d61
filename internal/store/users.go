package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskwell/taskwell/internal/task"
)

// Credential is a username/password pair read from the users table.
// It exists only for the auth layer; no API read path ever serializes it.
type Credential struct {
	UserID   int64
	Username string
	Password string
}

// ListUsers returns all users, passwords excluded.
func (s *Store) ListUsers(ctx context.Context) ([]task.User, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, username FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []task.User
	for rows.Next() {
		var u task.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// GetUser returns a single user by id, password excluded.
// Returns ErrNotFound if the id is absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*task.User, error) {
	var u task.User
	err := s.conn.QueryRowContext(ctx, `SELECT id, username FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

// LookupCredential fetches the stored credential for a username.
// This is the only read path that touches the password column.
func (s *Store) LookupCredential(ctx context.Context, username string) (*Credential, error) {
	var c Credential
	err := s.conn.QueryRowContext(ctx, `SELECT id, username, password FROM users WHERE username = ?`, username).
		Scan(&c.UserID, &c.Username, &c.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	return &c, nil
}

// CreateUser provisions a new user and returns it.
func (s *Store) CreateUser(ctx context.Context, username, password string) (*task.User, error) {
	res, err := s.conn.ExecContext(ctx, `INSERT INTO users (username, password) VALUES (?, ?)`, username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return &task.User{ID: id, Username: username}, nil
}
