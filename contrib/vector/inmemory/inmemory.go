package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/physio-agent/errors"
	"github.com/sweetpotato0/physio-agent/vector"
)

// Store implements vector.Store using in-memory storage. Suited to tests,
// examples and small reference datasets that fit in process memory.
type Store struct {
	embeddings map[string]*vector.Embedding
	mu         sync.RWMutex
}

// New creates an empty in-memory vector store.
func New() *Store {
	return &Store{
		embeddings: make(map[string]*vector.Embedding),
	}
}

// Add upserts embeddings into the store
func (s *Store) Add(ctx context.Context, embeddings ...*vector.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, embedding := range embeddings {
		if embedding == nil {
			return fmt.Errorf("%w: embedding cannot be nil", errors.ErrInvalidInput)
		}
		if embedding.ID == "" {
			return fmt.Errorf("%w: embedding ID cannot be empty", errors.ErrInvalidInput)
		}
		if len(embedding.Vector) == 0 {
			return fmt.Errorf("%w: embedding vector cannot be empty", errors.ErrInvalidInput)
		}
		s.embeddings[embedding.ID] = embedding
	}
	return nil
}

// Search finds embeddings similar to the query vector, restricted to those
// whose metadata matches the filter.
func (s *Store) Search(ctx context.Context, query []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", errors.ErrInvalidInput)
	}

	if topK <= 0 {
		topK = 10
	}

	results := make([]vector.Match, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		if len(emb.Vector) != len(query) {
			continue
		}
		if !filter.Match(emb.Metadata) {
			continue
		}

		results = append(results, vector.Match{
			Embedding: emb,
			Score:     vector.CosineSimilarity(query, emb.Vector),
		})
	}

	// Sort by similarity (highest first)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Get retrieves a specific embedding by ID
func (s *Store) Get(ctx context.Context, id string) (*vector.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emb, exists := s.embeddings[id]
	if !exists {
		return nil, fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}

	return emb, nil
}

// Delete removes an embedding by ID
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.embeddings[id]; !exists {
		return fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}

	delete(s.embeddings, id)
	return nil
}

// Clear removes all embeddings
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings = make(map[string]*vector.Embedding)
	return nil
}

// Count returns the number of embeddings
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.embeddings), nil
}
