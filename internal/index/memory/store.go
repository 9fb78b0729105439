// Package memory provides an in-memory index.Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"planhub/internal/index"
	"planhub/pkg/platform/sentinel"
)

// Store keeps documents in a mutex-guarded map.
type Store struct {
	mu   sync.RWMutex
	docs map[string]index.Document
}

// New creates an empty in-memory index.
func New() *Store {
	return &Store{docs: make(map[string]index.Document)}
}

func (s *Store) Upsert(ctx context.Context, doc index.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *Store) DeleteByParent(ctx context.Context, parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for id, doc := range s.docs {
		if doc.ParentID == parentID || (doc.RoutingKey == parentID && doc.ID != parentID) {
			delete(s.docs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) QueryByParent(ctx context.Context, parentID string) ([]index.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []index.Document
	for _, doc := range s.docs {
		if doc.ParentID == parentID {
			docs = append(docs, doc)
		}
	}
	sortDocs(docs)
	return docs, nil
}

func (s *Store) Get(ctx context.Context, id string) (index.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return index.Document{}, sentinel.ErrNotFound
	}
	return doc, nil
}

func (s *Store) SearchRange(ctx context.Context, relationship, field string, gt, lt *float64) ([]index.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []index.Document
	for _, doc := range s.docs {
		if doc.Relationship != relationship {
			continue
		}
		v, ok := doc.Fields[field].(float64)
		if !ok {
			continue
		}
		if gt != nil && v <= *gt {
			continue
		}
		if lt != nil && v >= *lt {
			continue
		}
		docs = append(docs, doc)
	}
	sortDocs(docs)
	return docs, nil
}

func (s *Store) SearchTerms(ctx context.Context, relationship string, terms map[string]string) ([]index.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []index.Document
	for _, doc := range s.docs {
		if doc.Relationship != relationship {
			continue
		}
		if matchesTerms(doc, terms) {
			docs = append(docs, doc)
		}
	}
	sortDocs(docs)
	return docs, nil
}

func matchesTerms(doc index.Document, terms map[string]string) bool {
	for key, want := range terms {
		v, ok := doc.Fields[key].(string)
		if !ok || v != want {
			return false
		}
	}
	return true
}

// Len reports the number of stored documents. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func sortDocs(docs []index.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
