package store

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/models"
)

// MemoryResourceStore is an in-memory ResourceStore used by tests and local
// runs without MongoDB.
type MemoryResourceStore struct {
	mu        sync.RWMutex
	resources map[primitive.ObjectID]*models.Resource
}

func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{resources: make(map[primitive.ObjectID]*models.Resource)}
}

func (s *MemoryResourceStore) Insert(_ context.Context, res *models.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.ID.IsZero() {
		res.ID = primitive.NewObjectID()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	clone := *res
	s.resources[res.ID] = &clone
	return nil
}

func (s *MemoryResourceStore) Get(_ context.Context, id primitive.ObjectID) (*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *res
	return &clone, nil
}

func (s *MemoryResourceStore) FindByHash(_ context.Context, brandID primitive.ObjectID, hash string) (*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, res := range s.resources {
		if res.BrandID == brandID && res.FileHash == hash && res.Status != models.StatusError {
			clone := *res
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemoryResourceStore) List(_ context.Context, brandID primitive.ObjectID) ([]models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Resource, 0)
	for _, res := range s.resources {
		if res.BrandID == brandID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (s *MemoryResourceStore) Claim(_ context.Context, id primitive.ObjectID) (*models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch res.Status {
	case models.StatusPending, models.StatusReady, models.StatusError:
		now := time.Now()
		res.Status = models.StatusIndexing
		res.IndexingStartedAt = &now
		res.ErrorMessage = ""
		clone := *res
		return &clone, nil
	default:
		return nil, ErrAlreadyIndexing
	}
}

func (s *MemoryResourceStore) SetReady(_ context.Context, id primitive.ObjectID, fullText string, chunkCount, tokenCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	res.Status = models.StatusReady
	res.FullText = fullText
	res.ChunkCount = chunkCount
	res.TokenCount = tokenCount
	res.ErrorMessage = ""
	res.IndexedAt = &now
	return nil
}

func (s *MemoryResourceStore) SetError(_ context.Context, id primitive.ObjectID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[id]
	if !ok {
		return ErrNotFound
	}
	res.Status = models.StatusError
	res.ErrorMessage = msg
	return nil
}

func (s *MemoryResourceStore) ReapStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, res := range s.resources {
		if res.Status == models.StatusIndexing && res.IndexingStartedAt != nil && res.IndexingStartedAt.Before(cutoff) {
			res.Status = models.StatusError
			res.ErrorMessage = "indexing timed out"
			n++
		}
	}
	return n, nil
}

func (s *MemoryResourceStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resources, id)
	return nil
}

// MemoryChunkStore is an in-memory ChunkStore using brute-force cosine
// similarity, mirroring what the Mongo store does when Atlas vector search is
// disabled.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks []models.BrandChunk
}

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{}
}

func (s *MemoryChunkStore) InsertMany(_ context.Context, chunks []models.BrandChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		if chunks[i].ID.IsZero() {
			chunks[i].ID = primitive.NewObjectID()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now()
		}
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryChunkStore) DeleteByResource(_ context.Context, resourceID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.ResourceID != resourceID {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

func (s *MemoryChunkStore) CountByResource(_ context.Context, resourceID primitive.ObjectID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.chunks {
		if c.ResourceID == resourceID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryChunkStore) Search(_ context.Context, brandID primitive.ObjectID, vector []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	scored := make([]models.ScoredChunk, 0)
	for _, c := range s.chunks {
		if c.BrandID != brandID {
			continue
		}
		score := CosineSimilarity(vector, c.Vector)
		if score < threshold {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Text:     c.Text,
			Metadata: c.Metadata,
			Score:    score,
		})
	}
	SortByScore(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
