// Package postgres implements index.Store on PostgreSQL. Parent-child
// affinity is modelled with explicit parent_id and routing_key columns in
// place of a join-field mapping; upserts are idempotent by document id.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"planhub/internal/index"
	"planhub/pkg/platform/sentinel"
)

// Store persists index documents in the plan_documents table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL-backed index store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the plan_documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS plan_documents (
			doc_id       TEXT PRIMARY KEY,
			parent_id    TEXT NOT NULL DEFAULT '',
			relationship TEXT NOT NULL,
			routing_key  TEXT NOT NULL,
			fields       JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS plan_documents_parent_idx ON plan_documents (parent_id);
		CREATE INDEX IF NOT EXISTS plan_documents_routing_idx ON plan_documents (routing_key);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure plan_documents schema: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, doc index.Document) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("marshal document fields: %w", err)
	}
	query := `
		INSERT INTO plan_documents (doc_id, parent_id, relationship, routing_key, fields, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (doc_id) DO UPDATE SET
			parent_id    = EXCLUDED.parent_id,
			relationship = EXCLUDED.relationship,
			routing_key  = EXCLUDED.routing_key,
			fields       = EXCLUDED.fields,
			updated_at   = now()
	`
	if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.ParentID, doc.Relationship, doc.RoutingKey, fields); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plan_documents WHERE doc_id = $1`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteByParent(ctx context.Context, parentID string) (int, error) {
	query := `
		DELETE FROM plan_documents
		WHERE parent_id = $1 OR (routing_key = $1 AND doc_id <> $1)
	`
	res, err := s.db.ExecContext(ctx, query, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete documents under %s: %w", parentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (s *Store) QueryByParent(ctx context.Context, parentID string) ([]index.Document, error) {
	query := `
		SELECT doc_id, parent_id, relationship, routing_key, fields
		FROM plan_documents
		WHERE parent_id = $1
		ORDER BY doc_id
	`
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("query documents under %s: %w", parentID, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *Store) Get(ctx context.Context, id string) (index.Document, error) {
	query := `
		SELECT doc_id, parent_id, relationship, routing_key, fields
		FROM plan_documents
		WHERE doc_id = $1
	`
	var (
		doc index.Document
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.ParentID, &doc.Relationship, &doc.RoutingKey, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Document{}, sentinel.ErrNotFound
	}
	if err != nil {
		return index.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &doc.Fields); err != nil {
		return index.Document{}, fmt.Errorf("unmarshal document fields: %w", err)
	}
	return doc, nil
}

func (s *Store) SearchRange(ctx context.Context, relationship, field string, gt, lt *float64) ([]index.Document, error) {
	query := `
		SELECT doc_id, parent_id, relationship, routing_key, fields
		FROM plan_documents
		WHERE relationship = $1
		  AND jsonb_typeof(fields -> $2) = 'number'
		  AND ($3::numeric IS NULL OR (fields ->> $2)::numeric > $3)
		  AND ($4::numeric IS NULL OR (fields ->> $2)::numeric < $4)
		ORDER BY doc_id
	`
	rows, err := s.db.QueryContext(ctx, query, relationship, field, nullableFloat(gt), nullableFloat(lt))
	if err != nil {
		return nil, fmt.Errorf("range query on %s: %w", field, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *Store) SearchTerms(ctx context.Context, relationship string, terms map[string]string) ([]index.Document, error) {
	if terms == nil {
		terms = map[string]string{}
	}
	filter, err := json.Marshal(terms)
	if err != nil {
		return nil, fmt.Errorf("marshal term filter: %w", err)
	}
	query := `
		SELECT doc_id, parent_id, relationship, routing_key, fields
		FROM plan_documents
		WHERE relationship = $1
		  AND fields @> $2::jsonb
		ORDER BY doc_id
	`
	rows, err := s.db.QueryContext(ctx, query, relationship, filter)
	if err != nil {
		return nil, fmt.Errorf("term query: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanDocuments(rows *sql.Rows) ([]index.Document, error) {
	var docs []index.Document
	for rows.Next() {
		var (
			doc index.Document
			raw []byte
		)
		if err := rows.Scan(&doc.ID, &doc.ParentID, &doc.Relationship, &doc.RoutingKey, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(raw, &doc.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal document fields: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
