package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"saas-agency-platform/internal/ai"
	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/logger"
	"saas-agency-platform/internal/store"
	"saas-agency-platform/internal/telemetry"
	"saas-agency-platform/models"
)

// FileReader reads a stored file payload. Satisfied by storage.Manager.
type FileReader interface {
	Read(path string) ([]byte, error)
}

// Pipeline runs the full ingestion of one resource: claim, extract, chunk,
// embed, persist. A resource's runs are serialized by the store's Claim, so
// the pipeline body never races with itself on the same resource.
type Pipeline struct {
	cfg       *config.Config
	resources store.ResourceStore
	chunks    store.ChunkStore
	embedder  ai.Embedder
	files     FileReader
	metrics   *telemetry.Metrics
}

func NewPipeline(cfg *config.Config, resources store.ResourceStore, chunks store.ChunkStore, embedder ai.Embedder, files FileReader, metrics *telemetry.Metrics) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		resources: resources,
		chunks:    chunks,
		embedder:  embedder,
		files:     files,
		metrics:   metrics,
	}
}

// Ingest processes the resource and returns the number of chunks indexed.
// On any failure after the claim the resource is marked error with the
// failure message; the caller decides whether to retry (never automatically).
// Re-ingesting a ready resource deletes its previous chunks first, so the
// index always reflects exactly one run.
func (p *Pipeline) Ingest(ctx context.Context, resourceID primitive.ObjectID) (int, error) {
	tracer := otel.Tracer("ingest")
	ctx, span := tracer.Start(ctx, "pipeline.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("resource.id", resourceID.Hex()))

	started := time.Now()

	res, err := p.resources.Claim(ctx, resourceID)
	if err != nil {
		return 0, err
	}

	count, err := p.run(ctx, res)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("Resource deleted during ingestion", "resource_id", resourceID.Hex())
			return 0, err
		}
		logger.Error("Ingestion failed", "resource_id", resourceID.Hex(), "error", err)
		// The claim moved the resource to indexing; release it to error even
		// when the surrounding context is already canceled.
		cleanup := context.WithoutCancel(ctx)
		if setErr := p.resources.SetError(cleanup, resourceID, err.Error()); setErr != nil && !errors.Is(setErr, store.ErrNotFound) {
			logger.Error("Failed to record ingestion error", "resource_id", resourceID.Hex(), "error", setErr)
		}
		if p.metrics != nil {
			p.metrics.RecordIngestion(time.Since(started).Seconds(), "error", 0)
		}
		return 0, err
	}

	if p.metrics != nil {
		p.metrics.RecordIngestion(time.Since(started).Seconds(), "ready", int64(count))
	}
	logger.Info("Resource indexed",
		"resource_id", resourceID.Hex(),
		"brand_id", res.BrandID.Hex(),
		"chunks", count,
		"duration", time.Since(started).String())
	return count, nil
}

func (p *Pipeline) run(ctx context.Context, res *models.Resource) (int, error) {
	var payload []byte
	if res.Kind == models.KindFile {
		data, err := p.files.Read(res.FilePath)
		if err != nil {
			return 0, &StorageError{Op: "read file", Err: err}
		}
		payload = data
	}

	extractor := NewExtractor()
	text, err := extractor.Extract(res, payload)
	if err != nil {
		return 0, err
	}

	cleaned := CleanText(text)
	pieces := SplitChunks(cleaned, ChunkerConfig{
		TargetTokens:  p.cfg.ChunkTargetTokens,
		OverlapTokens: p.cfg.ChunkOverlapTokens,
		CharsPerToken: p.cfg.CharsPerToken,
	})

	// Fragments below the minimum are noise (stray headers, page numbers)
	// and are not worth an embedding call.
	kept := pieces[:0]
	for _, piece := range pieces {
		if len(piece) >= p.cfg.MinChunkChars {
			kept = append(kept, piece)
		}
	}
	if len(kept) == 0 {
		return 0, &ExtractionError{Reason: "no extractable text"}
	}

	chunks, err := p.embedAll(ctx, res, kept)
	if err != nil {
		return 0, err
	}

	// Delete-then-write: previous chunks from an earlier run are dropped so
	// re-ingestion cannot leave stale vectors behind.
	if err := p.chunks.DeleteByResource(ctx, res.ID); err != nil {
		return 0, &StorageError{Op: "delete previous chunks", Err: err}
	}
	if err := p.chunks.InsertMany(ctx, chunks); err != nil {
		return 0, &StorageError{Op: "insert chunks", Err: err}
	}

	tokenCount := EstimateTokens(cleaned, p.cfg.CharsPerToken)
	if err := p.resources.SetReady(ctx, res.ID, cleaned, len(chunks), tokenCount); err != nil {
		// The resource was deleted while this run was in flight. Its chunks
		// were just inserted; remove them so nothing searchable outlives the
		// resource.
		if errors.Is(err, store.ErrNotFound) {
			cleanup := context.WithoutCancel(ctx)
			if delErr := p.chunks.DeleteByResource(cleanup, res.ID); delErr != nil {
				logger.Error("Failed to remove chunks of deleted resource", "resource_id", res.ID.Hex(), "error", delErr)
			}
			return 0, store.ErrNotFound
		}
		return 0, &StorageError{Op: "mark ready", Err: err}
	}
	return len(chunks), nil
}

// embedAll embeds every chunk with bounded concurrency. Order is preserved
// by writing into a fixed slot per chunk; the first failure cancels the rest.
func (p *Pipeline) embedAll(ctx context.Context, res *models.Resource, pieces []string) ([]models.BrandChunk, error) {
	concurrency := p.cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	now := time.Now()
	chunks := make([]models.BrandChunk, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			vector, err := p.embedder.Embed(gctx, piece)
			if p.metrics != nil {
				p.metrics.RecordEmbeddingCall(p.embedder.Model(), err == nil)
			}
			if err != nil {
				return &EmbeddingError{ChunkIndex: i, Err: err}
			}
			chunks[i] = models.BrandChunk{
				BrandID:    res.BrandID,
				ResourceID: res.ID,
				ChunkID:    fmt.Sprintf("%s_%d", res.ID.Hex(), i),
				Order:      i,
				Text:       piece,
				Vector:     vector,
				Metadata: models.ChunkMetadata{
					Title: res.Title,
					Kind:  res.Kind,
				},
				CreatedAt: now,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
