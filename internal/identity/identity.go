// Package identity resolves user ids to their current access role.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/db"
)

// ErrUnknownUser is returned when a user id has no registered role.
var ErrUnknownUser = errors.New("unknown user")

// User is a registered user with an assigned role.
type User struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Role      access.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// Resolver maps a user id to their role. Resolution happens fresh per
// request so role changes take effect immediately; there is no caching.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (access.Role, error)
}

// Store manages registered users in the shared SQLite database.
type Store struct {
	db *db.DB
}

// NewStore creates a new user store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Add registers a user or updates the name and role of an existing one.
func (s *Store) Add(ctx context.Context, id, name string, role access.Role) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id must not be empty")
	}
	if _, err := access.ParseRole(string(role)); err != nil {
		return nil, err
	}

	u := User{ID: id, Name: name, Role: role, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role`,
		u.ID, u.Name, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return &u, nil
}

// List returns all registered users.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, role, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		u.Role = access.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

// Remove deletes a user. Removing an unknown user is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing user: %w", err)
	}
	return nil
}

// Resolve implements Resolver. Unknown users resolve to an error, never to
// a default role.
func (s *Store) Resolve(ctx context.Context, userID string) (access.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return "", fmt.Errorf("resolving user role: %w", err)
	}
	return access.ParseRole(role)
}
