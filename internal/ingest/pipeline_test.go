package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/store"
	"saas-agency-platform/models"
)

// fakeEmbedder returns a deterministic vector per text, or fails on demand.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("provider unavailable")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embedding-001" }

type fakeFiles struct {
	data map[string][]byte
}

func (f *fakeFiles) Read(path string) ([]byte, error) {
	data, ok := f.data[path]
	if !ok {
		return nil, fmt.Errorf("no such file %s", path)
	}
	return data, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ChunkTargetTokens:  1000,
		ChunkOverlapTokens: 200,
		CharsPerToken:      4,
		MinChunkChars:      10,
		EmbedConcurrency:   2,
	}
}

func newTestPipeline(embedder *fakeEmbedder, files *fakeFiles) (*Pipeline, *store.MemoryResourceStore, *store.MemoryChunkStore) {
	resources := store.NewMemoryResourceStore()
	chunks := store.NewMemoryChunkStore()
	if files == nil {
		files = &fakeFiles{}
	}
	p := NewPipeline(testConfig(), resources, chunks, embedder, files, nil)
	return p, resources, chunks
}

func seedNote(t *testing.T, resources *store.MemoryResourceStore, text string) *models.Resource {
	t.Helper()
	res := &models.Resource{
		BrandID: primitive.NewObjectID(),
		Kind:    models.KindNote,
		Title:   "tone of voice",
		Text:    text,
		Status:  models.StatusPending,
	}
	require.NoError(t, resources.Insert(context.Background(), res))
	return res
}

func TestIngestNoteLifecycle(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, resources, chunks := newTestPipeline(embedder, nil)
	res := seedNote(t, resources, strings.Repeat("brand voice. ", 900))

	count, err := p.Ingest(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Greater(t, count, 1)

	got, err := resources.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
	assert.Equal(t, count, got.ChunkCount)
	assert.NotEmpty(t, got.FullText)
	assert.Greater(t, got.TokenCount, 0)
	assert.NotNil(t, got.IndexedAt)
	assert.Empty(t, got.ErrorMessage)

	stored, err := chunks.CountByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(count), stored)
	assert.Equal(t, count, embedder.calls)
}

func TestIngestPreservesChunkOrderAndScope(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, resources, chunks := newTestPipeline(embedder, nil)
	res := seedNote(t, resources, strings.Repeat("a", 10000))

	count, err := p.Ingest(context.Background(), res.ID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	hits, err := chunks.Search(context.Background(), res.BrandID, []float32{1, 1, 0}, -1, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, hit := range hits {
		assert.Equal(t, "tone of voice", hit.Metadata.Title)
		assert.Equal(t, models.KindNote, hit.Metadata.Kind)
	}
}

func TestIngestTwiceIsIdempotent(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, resources, chunks := newTestPipeline(embedder, nil)
	res := seedNote(t, resources, strings.Repeat("repeatable content. ", 600))

	first, err := p.Ingest(context.Background(), res.ID)
	require.NoError(t, err)

	second, err := p.Ingest(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stored, err := chunks.CountByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(first), stored, "re-ingestion must not accumulate chunks")
}

func TestIngestEmbeddingFailureMarksError(t *testing.T) {
	embedder := &fakeEmbedder{fail: true}
	p, resources, chunks := newTestPipeline(embedder, nil)
	res := seedNote(t, resources, strings.Repeat("text. ", 200))

	_, err := p.Ingest(context.Background(), res.ID)
	require.Error(t, err)
	var embErr *EmbeddingError
	assert.ErrorAs(t, err, &embErr)

	got, err := resources.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)

	// Nothing was persisted: the failed run never reached the chunk store.
	stored, err := chunks.CountByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Zero(t, stored)
}

func TestIngestEmptyNoteMarksError(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, resources, _ := newTestPipeline(embedder, nil)
	res := seedNote(t, resources, "   ")

	_, err := p.Ingest(context.Background(), res.ID)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)

	got, err := resources.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
}

func TestIngestSkipsTinyChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, resources, _ := newTestPipeline(embedder, nil)
	// Below MinChunkChars after cleaning: nothing worth embedding.
	res := seedNote(t, resources, "ok")

	_, err := p.Ingest(context.Background(), res.ID)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Zero(t, embedder.calls)
}

func TestIngestMissingFileMarksError(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, resources, _ := newTestPipeline(embedder, &fakeFiles{data: map[string][]byte{}})

	res := &models.Resource{
		BrandID:   primitive.NewObjectID(),
		Kind:      models.KindFile,
		MediaType: "text/plain",
		Title:     "gone",
		FilePath:  "/tmp/removed.txt",
		Status:    models.StatusPending,
	}
	require.NoError(t, resources.Insert(context.Background(), res))

	_, err := p.Ingest(context.Background(), res.ID)
	var stErr *StorageError
	require.ErrorAs(t, err, &stErr)

	got, err := resources.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
}

// hookEmbedder runs a callback once, on the first embedding call.
type hookEmbedder struct {
	mu    sync.Mutex
	fired bool
	hook  func()
}

func (h *hookEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	fire := !h.fired
	h.fired = true
	h.mu.Unlock()
	if fire && h.hook != nil {
		h.hook()
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (h *hookEmbedder) Model() string { return "hook-embedding-001" }

func TestIngestResourceDeletedMidRunLeavesNoChunks(t *testing.T) {
	resources := store.NewMemoryResourceStore()
	chunks := store.NewMemoryChunkStore()
	res := seedNote(t, resources, strings.Repeat("a", 10000))

	// Delete the resource while embedding is in flight, in the same order the
	// delete endpoint uses: chunks first, then the document.
	embedder := &hookEmbedder{hook: func() {
		require.NoError(t, chunks.DeleteByResource(context.Background(), res.ID))
		require.NoError(t, resources.Delete(context.Background(), res.ID))
	}}
	p := NewPipeline(testConfig(), resources, chunks, embedder, &fakeFiles{}, nil)

	_, err := p.Ingest(context.Background(), res.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	stored, err := chunks.CountByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Zero(t, stored, "a deleted resource must not keep searchable chunks")

	_, err = resources.Get(context.Background(), res.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIngestUnknownResource(t *testing.T) {
	embedder := &fakeEmbedder{}
	p, _, _ := newTestPipeline(embedder, nil)

	_, err := p.Ingest(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimBlocksConcurrentRun(t *testing.T) {
	resources := store.NewMemoryResourceStore()
	res := &models.Resource{
		BrandID: primitive.NewObjectID(),
		Kind:    models.KindNote,
		Text:    "some content here",
		Status:  models.StatusPending,
	}
	require.NoError(t, resources.Insert(context.Background(), res))

	_, err := resources.Claim(context.Background(), res.ID)
	require.NoError(t, err)

	_, err = resources.Claim(context.Background(), res.ID)
	assert.ErrorIs(t, err, store.ErrAlreadyIndexing)
}
