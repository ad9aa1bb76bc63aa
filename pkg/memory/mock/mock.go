// Package mock provides an in-memory memory.Store for tests.
//
// It reproduces the backend contract faithfully — per-collection isolation,
// shared-collection merging, the cosine score mapping, and permanent
// deletion — over plain slices, using an embeddings provider for vectors.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foyer-ai/foyer/pkg/memory"
	"github.com/foyer-ai/foyer/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// entry is a stored record plus its vector.
type entry struct {
	memory.Entry
	vec []float32
}

// Store is an in-memory implementation of memory.Store.
type Store struct {
	embedder embeddings.Provider

	mu          sync.RWMutex
	collections map[string][]entry

	// HealthyValue is returned by Healthy. Defaults to true.
	HealthyValue bool
}

// New returns an empty store using the given embeddings provider.
func New(embedder embeddings.Provider) *Store {
	s := &Store{
		embedder:     embedder,
		collections:  make(map[string][]entry),
		HealthyValue: true,
	}
	// Pre-create all known collections plus shared, as the real backend does.
	for _, uid := range memory.KnownUsers {
		s.collections[memory.CollectionName(uid)] = nil
	}
	s.collections[memory.CollectionName(memory.SharedUser)] = nil
	return s
}

// Add implements memory.Store.
func (s *Store) Add(ctx context.Context, userID, content, source string, metadata map[string]any) (string, error) {
	if err := memory.ValidateAddUser(userID); err != nil {
		return "", err
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	e := entry{
		Entry: memory.Entry{
			ID:        uuid.NewString(),
			Content:   content,
			UserID:    userID,
			Timestamp: time.Now().UTC(),
			Source:    source,
			Metadata:  metadata,
		},
		vec: vec,
	}

	col := memory.CollectionName(userID)
	s.mu.Lock()
	s.collections[col] = append(s.collections[col], e)
	s.mu.Unlock()
	return e.ID, nil
}

// Search implements memory.Store.
func (s *Store) Search(ctx context.Context, userID, query string, topK int) ([]memory.SearchResult, error) {
	if err := memory.ValidateSearchUser(userID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []memory.SearchResult{}, nil
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	own := s.searchCollection(memory.CollectionName(userID), qvec, topK)
	shared := s.searchCollection(memory.CollectionName(memory.SharedUser), qvec, topK)
	return memory.MergeTopK(topK, own, shared), nil
}

// searchCollection scores one collection. Caller holds at least a read lock.
func (s *Store) searchCollection(col string, qvec []float32, topK int) []memory.SearchResult {
	var out []memory.SearchResult
	for _, e := range s.collections[col] {
		// Cosine distance for unit vectors: 1 − dot.
		var dot float64
		n := min(len(qvec), len(e.vec))
		for i := 0; i < n; i++ {
			dot += float64(qvec[i]) * float64(e.vec[i])
		}
		out = append(out, memory.SearchResult{
			Entry: e.Entry,
			Score: memory.ScoreFromCosineDistance(1 - dot),
		})
	}
	return memory.MergeTopK(topK, out)
}

// Delete implements memory.Store.
func (s *Store) Delete(_ context.Context, userID, memoryID string) (bool, error) {
	if err := memory.ValidateSearchUser(userID); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, col := range []string{
		memory.CollectionName(userID),
		memory.CollectionName(memory.SharedUser),
	} {
		entries := s.collections[col]
		for i, e := range entries {
			if e.ID == memoryID {
				s.collections[col] = append(entries[:i], entries[i+1:]...)
				return true, nil
			}
		}
	}
	return false, nil
}

// Healthy implements memory.Store.
func (s *Store) Healthy(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HealthyValue
}

// Count returns the number of entries in the collection of uid. Test helper.
func (s *Store) Count(uid string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[memory.CollectionName(uid)])
}
