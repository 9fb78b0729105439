// Package index defines the search-index port: flattened, independently
// addressable documents derived from plan aggregates. The backend owns query
// execution; this interface is deliberately small and idempotent so pipeline
// workers can repeat any operation safely.
package index

import "context"

// Document is one flattened record derived from part of an aggregate.
type Document struct {
	// ID is the source entity's objectId.
	ID string `json:"id"`
	// ParentID is the id of the nearest owning entity that is itself a
	// document, empty for the root plan.
	ParentID string `json:"parentId,omitempty"`
	// Relationship is one of the models.Relationship* tags.
	Relationship string `json:"relationship"`
	// RoutingKey co-locates a document with its root plan.
	RoutingKey string `json:"routingKey"`
	// Fields carries the entity's own scalar attributes only; nested
	// objects are emitted as separate documents, never embedded.
	Fields map[string]any `json:"fields"`
}

// Store is the search-index collaborator contract.
type Store interface {
	// Upsert writes a document by id. Repeating an upsert is a no-op
	// beyond overwriting with identical content.
	Upsert(ctx context.Context, doc Document) error
	// Delete removes a document by id. Missing documents are not an error.
	Delete(ctx context.Context, id string) error
	// DeleteByParent removes every document whose ParentID or RoutingKey
	// matches, returning how many were removed. Zero is success.
	DeleteByParent(ctx context.Context, parentID string) (int, error)
	// QueryByParent lists documents whose ParentID matches.
	QueryByParent(ctx context.Context, parentID string) ([]Document, error)
	// Get fetches one document by id.
	Get(ctx context.Context, id string) (Document, error)
	// SearchRange lists documents with the given relationship whose named
	// numeric field lies in (gt, lt). Either bound may be nil.
	SearchRange(ctx context.Context, relationship, field string, gt, lt *float64) ([]Document, error)
	// SearchTerms lists documents with the given relationship whose fields
	// equal every given term. Empty terms match every document of the
	// relationship.
	SearchTerms(ctx context.Context, relationship string, terms map[string]string) ([]Document, error)
}
