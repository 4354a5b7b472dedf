package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Items are kept in insertion order; upserting an existing id overwrites it in place.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	items     []domain.IndexedVector
	pos       map[string]int
}

func NewStorage() *Storage { return &Storage{pos: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("%w: collection has %d, requested %d", domain.ErrDimensionMismatch, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

// Dimension returns the vector size fixed by Init, or 0 before Init.
func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

func (s *Storage) Upsert(_ context.Context, items []domain.IndexedVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return domain.ErrIndexNotReady
	}
	if err := vectorstore.CheckVectors(items, s.dimension); err != nil {
		return err
	}
	for _, it := range items {
		if i, ok := s.pos[it.ID]; ok {
			s.items[i] = it
			continue
		}
		s.pos[it.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, domain.ErrIndexNotReady
	}
	if len(req.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(req.Vector), s.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var candidates []domain.SearchResult
	for _, it := range s.items {
		if !req.Filter.Matches(it.Metadata) {
			continue
		}
		candidates = append(candidates, domain.SearchResult{
			ID:       it.ID,
			Text:     it.Text,
			Metadata: it.Metadata,
			Score:    vectorstore.Similarity(req.Vector, it.Vector),
		})
	}
	return vectorstore.Rank(candidates, req.Threshold, req.Limit), nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.pos = make(map[string]int)
	return nil
}

func (s *Storage) Close() error { return nil }
