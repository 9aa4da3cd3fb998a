package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/docsentry/docsentry/internal/access"
	"github.com/docsentry/docsentry/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestAddAndResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "alice", "Alice", access.RoleManager); err != nil {
		t.Fatalf("Add: %v", err)
	}

	role, err := store.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if role != access.RoleManager {
		t.Errorf("role = %s, want Manager", role)
	}
}

func TestResolveUnknownUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Resolve(context.Background(), "nobody")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Resolve error = %v, want ErrUnknownUser", err)
	}
}

func TestAddRejectsInvalidRole(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Add(context.Background(), "x", "X", access.Role("Superuser")); !errors.Is(err, access.ErrUnknownRole) {
		t.Errorf("Add error = %v, want ErrUnknownRole", err)
	}
	if _, err := store.Add(context.Background(), "", "X", access.RoleAdmin); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestAddUpdatesRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "bob", "Bob", access.RoleEmployee)
	if _, err := store.Add(ctx, "bob", "Bob", access.RoleAdmin); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	role, err := store.Resolve(ctx, "bob")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if role != access.RoleAdmin {
		t.Errorf("role = %s, want Admin after update", role)
	}

	users, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("got %d users, want 1", len(users))
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "carol", "Carol", access.RoleEmployee)
	if err := store.Remove(ctx, "carol"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(ctx, "carol"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if _, err := store.Resolve(ctx, "carol"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Resolve after remove = %v, want ErrUnknownUser", err)
	}
}
