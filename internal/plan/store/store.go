// Package store persists plan aggregates in the primary key-value store.
//
// The whole aggregate is one value under its plan id, so the root and every
// owned child live and die together; no multi-key transaction is needed for
// the delete cascade at the storage level.
package store

import (
	"context"

	"planhub/internal/plan/models"
)

// Store is the aggregate store adapter. Implementations surface
// sentinel.ErrNotFound, sentinel.ErrConflict and sentinel.ErrTagMismatch as
// facts and wrap transport failures in sentinel.ErrUnavailable; they never
// retry.
type Store interface {
	// Get fetches an aggregate by plan id.
	Get(ctx context.Context, id string) (*models.Plan, error)

	// Put unconditionally writes an aggregate.
	Put(ctx context.Context, plan *models.Plan) error

	// PutIf writes the aggregate only if the stored version tag still
	// equals expectedTag. An empty expectedTag means create-if-absent:
	// sentinel.ErrConflict if the id already exists. A non-empty tag
	// against a missing id yields sentinel.ErrNotFound; a mismatched tag
	// yields sentinel.ErrTagMismatch. Concurrent writers race only here,
	// and exactly one wins.
	PutIf(ctx context.Context, plan *models.Plan, expectedTag string) error

	// Delete removes an aggregate. sentinel.ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Exists reports whether an aggregate is present.
	Exists(ctx context.Context, id string) (bool, error)

	// List returns every stored aggregate.
	List(ctx context.Context) ([]*models.Plan, error)
}
