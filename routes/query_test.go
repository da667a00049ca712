package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/retrieval"
	"saas-agency-platform/internal/store"
	"saas-agency-platform/models"
)

type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, nil
}

func (f *fixedEmbedder) Model() string { return "fixed-embedding-001" }

func newQueryRouter(chunks *store.MemoryChunkStore, brandID primitive.ObjectID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{SimilarityThreshold: 0.5, RetrievalLimit: 5}
	retriever := retrieval.NewRetriever(cfg, chunks, &fixedEmbedder{vector: []float32{1, 0, 0}}, nil)

	router := gin.New()
	router.POST("/query", func(c *gin.Context) {
		c.Set("brand_id", brandID.Hex())
		queryHandler(retriever)(c)
	})
	return router
}

func postQuery(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQueryRouteReturnsHits(t *testing.T) {
	chunks := store.NewMemoryChunkStore()
	brandID := primitive.NewObjectID()
	require.NoError(t, chunks.InsertMany(context.Background(), []models.BrandChunk{{
		BrandID:    brandID,
		ResourceID: primitive.NewObjectID(),
		Text:       "brand tone is playful",
		Vector:     []float32{1, 0, 0},
	}}))
	router := newQueryRouter(chunks, brandID)

	w := postQuery(router, `{"query":"what is the tone?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Chunks []models.ScoredChunk `json:"chunks"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "brand tone is playful", resp.Chunks[0].Text)
}

func TestQueryRouteSuperUnityThresholdIsEmptyNotRejected(t *testing.T) {
	chunks := store.NewMemoryChunkStore()
	brandID := primitive.NewObjectID()
	require.NoError(t, chunks.InsertMany(context.Background(), []models.BrandChunk{{
		BrandID:    brandID,
		ResourceID: primitive.NewObjectID(),
		Text:       "perfect match",
		Vector:     []float32{1, 0, 0},
	}}))
	router := newQueryRouter(chunks, brandID)

	// Above any possible similarity: a valid query with an empty answer.
	w := postQuery(router, `{"query":"anything","threshold":1.01}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Chunks []models.ScoredChunk `json:"chunks"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Chunks)
}

func TestQueryRouteRejectsNegativeThreshold(t *testing.T) {
	router := newQueryRouter(store.NewMemoryChunkStore(), primitive.NewObjectID())

	w := postQuery(router, `{"query":"anything","threshold":-0.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryRouteRequiresQueryText(t *testing.T) {
	router := newQueryRouter(store.NewMemoryChunkStore(), primitive.NewObjectID())

	w := postQuery(router, `{"threshold":0.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
