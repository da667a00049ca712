package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"saas-agency-platform/internal/ingest"
	"saas-agency-platform/internal/logger"
	"saas-agency-platform/internal/store"
)

const (
	// TaskIngestResource runs the full ingestion pipeline for one resource.
	TaskIngestResource = "resource:ingest"
)

type IngestPayload struct {
	ResourceID string `json:"resource_id"`
	BrandID    string `json:"brand_id"`
}

// NewIngestTask builds the queue task for one resource. MaxRetry is zero:
// a failed ingestion parks the resource in error status and waits for an
// explicit retry, it is never replayed automatically.
func NewIngestTask(resourceID, brandID primitive.ObjectID, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		ResourceID: resourceID.Hex(),
		BrandID:    brandID.Hex(),
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestResource,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue("default"),
	), nil
}

// Processor handles queued ingestion tasks.
type Processor struct {
	pipeline *ingest.Pipeline
}

func NewProcessor(pipeline *ingest.Pipeline) *Processor {
	return &Processor{pipeline: pipeline}
}

func (p *Processor) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	resourceID, err := primitive.ObjectIDFromHex(payload.ResourceID)
	if err != nil {
		return fmt.Errorf("bad resource id %q: %w", payload.ResourceID, asynq.SkipRetry)
	}

	logger.Info("Ingest task started", "resource_id", payload.ResourceID, "brand_id", payload.BrandID)

	if _, err := p.pipeline.Ingest(ctx, resourceID); err != nil {
		// Another run holds the claim; this enqueue is redundant, not failed.
		if errors.Is(err, store.ErrAlreadyIndexing) {
			logger.Warn("Resource already being indexed", "resource_id", payload.ResourceID)
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("Resource deleted before ingestion", "resource_id", payload.ResourceID)
			return nil
		}
		// The pipeline already recorded the error on the resource.
		return fmt.Errorf("ingest %s: %v: %w", payload.ResourceID, err, asynq.SkipRetry)
	}
	return nil
}
