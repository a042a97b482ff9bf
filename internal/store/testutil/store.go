package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"taskping/internal/model"
	"taskping/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", store.Options{})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedUser inserts a user with sensible defaults and returns it.
func SeedUser(t *testing.T, s store.Store, name string) model.User {
	t.Helper()

	u := model.User{
		ID:          uuid.New().String(),
		DisplayName: name,
		Email:       name + "@example.com",
		CreatedAt:   time.Now(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", name, err)
	}
	return u
}

// SeedTask inserts a task after applying fn (if any) to customize it.
func SeedTask(t *testing.T, s store.Store, title string, fn func(*model.Task)) model.Task {
	t.Helper()

	now := time.Now()
	task := model.Task{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    model.StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if fn != nil {
		fn(&task)
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seeding task %s: %v", title, err)
	}
	return task
}
