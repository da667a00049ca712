package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/models"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Mismatched dimensions and zero vectors score zero instead of erroring.
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestAtlasScoreToCosine(t *testing.T) {
	// Atlas cosine indexes report (1+cos)/2; both search paths must threshold
	// and report on the raw cosine scale.
	assert.InDelta(t, 1.0, atlasScoreToCosine(1.0), 1e-9)
	assert.InDelta(t, 0.0, atlasScoreToCosine(0.5), 1e-9)
	assert.InDelta(t, -1.0, atlasScoreToCosine(0.0), 1e-9)
	assert.InDelta(t, 0.2, atlasScoreToCosine(0.6), 1e-9)
}

func TestSortByScore(t *testing.T) {
	hits := []models.ScoredChunk{
		{Text: "low", Score: 0.2},
		{Text: "high", Score: 0.9},
		{Text: "mid", Score: 0.5},
	}
	SortByScore(hits)

	assert.Equal(t, "high", hits[0].Text)
	assert.Equal(t, "mid", hits[1].Text)
	assert.Equal(t, "low", hits[2].Text)
}

func TestMemoryResourceClaimTransitions(t *testing.T) {
	s := NewMemoryResourceStore()
	ctx := context.Background()
	res := &models.Resource{
		BrandID: primitive.NewObjectID(),
		Kind:    models.KindNote,
		Status:  models.StatusPending,
	}
	require.NoError(t, s.Insert(ctx, res))

	claimed, err := s.Claim(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexing, claimed.Status)
	assert.NotNil(t, claimed.IndexingStartedAt)

	_, err = s.Claim(ctx, res.ID)
	assert.ErrorIs(t, err, ErrAlreadyIndexing)

	// An errored resource can be claimed again, and the claim clears the
	// previous failure message.
	require.NoError(t, s.SetError(ctx, res.ID, "provider unavailable"))
	claimed, err = s.Claim(ctx, res.ID)
	require.NoError(t, err)
	assert.Empty(t, claimed.ErrorMessage)

	_, err = s.Claim(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryResourceFindByHash(t *testing.T) {
	s := NewMemoryResourceStore()
	ctx := context.Background()
	brandID := primitive.NewObjectID()

	ready := &models.Resource{BrandID: brandID, Kind: models.KindFile, FileHash: "abc123", Status: models.StatusReady}
	require.NoError(t, s.Insert(ctx, ready))

	found, err := s.FindByHash(ctx, brandID, "abc123")
	require.NoError(t, err)
	assert.Equal(t, ready.ID, found.ID)

	// Another brand's copy of the same file is not a duplicate.
	found, err = s.FindByHash(ctx, primitive.NewObjectID(), "abc123")
	require.NoError(t, err)
	assert.Nil(t, found)

	// A failed upload does not block re-uploading the same payload.
	require.NoError(t, s.SetError(ctx, ready.ID, "boom"))
	found, err = s.FindByHash(ctx, brandID, "abc123")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryResourceReapStale(t *testing.T) {
	s := NewMemoryResourceStore()
	ctx := context.Background()

	stale := &models.Resource{BrandID: primitive.NewObjectID(), Kind: models.KindNote, Status: models.StatusPending}
	fresh := &models.Resource{BrandID: primitive.NewObjectID(), Kind: models.KindNote, Status: models.StatusPending}
	require.NoError(t, s.Insert(ctx, stale))
	require.NoError(t, s.Insert(ctx, fresh))

	_, err := s.Claim(ctx, stale.ID)
	require.NoError(t, err)
	_, err = s.Claim(ctx, fresh.ID)
	require.NoError(t, err)

	// Only claims older than the cutoff are reaped.
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	got, err := s.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.IndexingStartedAt)

	// Backdate the stale claim past the cutoff.
	s.mu.Lock()
	old := cutoff.Add(-time.Hour)
	s.resources[stale.ID].IndexingStartedAt = &old
	s.mu.Unlock()

	n, err := s.ReapStale(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reaped, err := s.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, reaped.Status)
	assert.Equal(t, "indexing timed out", reaped.ErrorMessage)

	kept, err := s.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexing, kept.Status)
}

func TestMemoryChunkDeleteByResource(t *testing.T) {
	s := NewMemoryChunkStore()
	ctx := context.Background()
	brandID := primitive.NewObjectID()
	keep := primitive.NewObjectID()
	drop := primitive.NewObjectID()

	require.NoError(t, s.InsertMany(ctx, []models.BrandChunk{
		{BrandID: brandID, ResourceID: keep, Text: "keep", Vector: []float32{1, 0}},
		{BrandID: brandID, ResourceID: drop, Text: "drop a", Vector: []float32{1, 0}},
		{BrandID: brandID, ResourceID: drop, Text: "drop b", Vector: []float32{1, 0}},
	}))

	require.NoError(t, s.DeleteByResource(ctx, drop))
	// Deleting again is a no-op, not an error.
	require.NoError(t, s.DeleteByResource(ctx, drop))

	n, err := s.CountByResource(ctx, drop)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CountByResource(ctx, keep)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
