package shopify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// MemoryStore is an in-memory entity store and write target. It backs
// development mode (no store connected) and tests. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[model.EntityID]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[model.EntityID]map[string]string)}
}

// Put inserts or replaces an entity's fields.
func (s *MemoryStore) Put(id model.EntityID, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	s.entities[id] = cp
}

// Delete removes an entity.
func (s *MemoryStore) Delete(id model.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
}

// QueryMatching returns the IDs of entities whose field matches the
// criteria, in stable (sorted) order.
func (s *MemoryStore) QueryMatching(_ context.Context, criteria model.Criteria) ([]model.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []model.EntityID
	for id, fields := range s.entities {
		if matches(fields[criteria.Field], criteria) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ReadField returns the current value of an entity's field.
func (s *MemoryStore) ReadField(_ context.Context, id model.EntityID, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.entities[id]
	if !ok {
		return "", fmt.Errorf("shopify: entity %s not found", id)
	}
	return fields[field], nil
}

// WriteField sets an entity's field value.
func (s *MemoryStore) WriteField(_ context.Context, id model.EntityID, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("shopify: entity %s not found", id)
	}
	fields[field] = value
	return nil
}
