package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
	}
}

func (s *MemoryStore) Put(_ context.Context, doc Document) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	doc.SourceID = strings.TrimSpace(doc.SourceID)
	if doc.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.SourceID] = doc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sourceID string) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("store is nil")
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return Document{}, fmt.Errorf("source_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[sourceID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// List returns document metadata only; Text is left empty.
func (s *MemoryStore) List(_ context.Context) ([]Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		doc.Text = ""
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sourceID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[sourceID]; !ok {
		return ErrNotFound
	}
	delete(s.docs, sourceID)
	return nil
}
