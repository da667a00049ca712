package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"saas-agency-platform/internal/ai"
	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/logger"
	"saas-agency-platform/internal/store"
	"saas-agency-platform/internal/telemetry"
	"saas-agency-platform/models"
)

// RetrievalError wraps any failure answering a similarity query: embedding
// the query text or searching the chunk store. An empty result set is not an
// error; it means no indexed content was relevant enough.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Options tune one query. Zero values fall back to the configured defaults.
type Options struct {
	Threshold float64 // minimum similarity, 0 means configured default
	Limit     int     // maximum hits, 0 means configured default
}

// Retriever answers tenant-scoped similarity queries over indexed chunks.
// The query text is embedded with the same model the indexer used, so both
// vectors live in the same space.
type Retriever struct {
	cfg      *config.Config
	chunks   store.ChunkStore
	embedder ai.Embedder
	metrics  *telemetry.Metrics
}

func NewRetriever(cfg *config.Config, chunks store.ChunkStore, embedder ai.Embedder, metrics *telemetry.Metrics) *Retriever {
	return &Retriever{cfg: cfg, chunks: chunks, embedder: embedder, metrics: metrics}
}

// Query returns the brand's chunks most similar to the query text, descending
// by score. Only chunks of the given brand are ever considered.
func (r *Retriever) Query(ctx context.Context, brandID primitive.ObjectID, query string, opts Options) ([]models.ScoredChunk, error) {
	tracer := otel.Tracer("retrieval")
	ctx, span := tracer.Start(ctx, "retriever.query")
	defer span.End()
	span.SetAttributes(attribute.String("brand.id", brandID.Hex()))

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = r.cfg.SimilarityThreshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = r.cfg.RetrievalLimit
	}

	started := time.Now()

	vector, err := r.embedder.Embed(ctx, query)
	if r.metrics != nil {
		r.metrics.RecordEmbeddingCall(r.embedder.Model(), err == nil)
	}
	if err != nil {
		return nil, &RetrievalError{Err: fmt.Errorf("embed query: %w", err)}
	}

	hits, err := r.chunks.Search(ctx, brandID, vector, threshold, limit)
	if err != nil {
		return nil, &RetrievalError{Err: fmt.Errorf("search chunks: %w", err)}
	}

	if r.metrics != nil {
		r.metrics.RecordRetrieval(time.Since(started).Seconds(), len(hits))
	}
	logger.Debug("Similarity query answered",
		"brand_id", brandID.Hex(),
		"hits", len(hits),
		"threshold", threshold,
		"limit", limit)
	return hits, nil
}
