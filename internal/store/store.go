package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/models"
)

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyIndexing is returned by Claim when another run holds the
	// resource. Ingestion runs for the same resource are serialized through
	// the claim, never interleaved.
	ErrAlreadyIndexing = errors.New("resource is already being indexed")
)

// ResourceStore persists resources and drives their status lifecycle.
type ResourceStore interface {
	Insert(ctx context.Context, res *models.Resource) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Resource, error)
	FindByHash(ctx context.Context, brandID primitive.ObjectID, hash string) (*models.Resource, error)
	List(ctx context.Context, brandID primitive.ObjectID) ([]models.Resource, error)

	// Claim atomically moves a resource from pending|ready|error to indexing
	// and returns it. ErrAlreadyIndexing when the transition is not available.
	Claim(ctx context.Context, id primitive.ObjectID) (*models.Resource, error)

	SetReady(ctx context.Context, id primitive.ObjectID, fullText string, chunkCount, tokenCount int) error
	SetError(ctx context.Context, id primitive.ObjectID, msg string) error

	// ReapStale flips resources stuck in indexing since before the cutoff to
	// error, so a crashed worker cannot leave them in-progress forever.
	ReapStale(ctx context.Context, cutoff time.Time) (int64, error)

	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ChunkStore persists embedded chunks and answers similarity queries. Chunks
// are immutable once written; re-sync deletes and rewrites the whole set for
// a resource.
type ChunkStore interface {
	InsertMany(ctx context.Context, chunks []models.BrandChunk) error

	// DeleteByResource is idempotent: deleting chunks for a resource that has
	// none is a no-op, so the two-step resource deletion can be retried.
	DeleteByResource(ctx context.Context, resourceID primitive.ObjectID) error

	// Search returns chunks of the given brand scoring at or above threshold
	// against the query vector, descending by score, at most limit. Scores and
	// threshold are raw cosine similarity in [-1, 1] on every implementation.
	// An empty result is a valid "no relevant context" answer.
	Search(ctx context.Context, brandID primitive.ObjectID, vector []float32, threshold float64, limit int) ([]models.ScoredChunk, error)

	CountByResource(ctx context.Context, resourceID primitive.ObjectID) (int64, error)
}
