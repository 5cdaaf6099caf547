package helpers

import (
	"context"
	"testing"

	"github.com/xiaot623/supportdesk/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *repository.SQLStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// NewSeededStore opens an in-memory store holding the demo data.
func NewSeededStore(t *testing.T) *repository.SQLStore {
	t.Helper()

	s := NewTestSQLiteStore(t)
	if _, err := repository.Seed(context.Background(), s); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return s
}
