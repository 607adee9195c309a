package api

import (
	"context"

	"study-planner/domain"
)

// Storage abstracts the record stores for handlers.
type Storage interface {
	Records(kind domain.Kind) ([]domain.Record, error)
	Groups(kind domain.Kind) ([]domain.Group, error)
	Append(ctx context.Context, kind domain.Kind, r domain.Record) ([]domain.Record, error)
	RemoveAt(ctx context.Context, kind domain.Kind, position int) (domain.Record, []domain.Record, error)
}

// Deduper remembers idempotency keys of appends already applied.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove forgets a key, used when the append it guarded failed.
	Remove(ctx context.Context, scope, key string) error
}
