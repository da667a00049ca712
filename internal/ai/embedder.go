package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/telemetry"
)

// Embedder turns text into a fixed-dimension vector. Indexing and retrieval
// must use the same implementation: vectors from different models live in
// different spaces and comparing them fails silently, so the model name is
// part of the chunk schema in all but name.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// GeminiEmbedder is the Google Generative AI implementation. The client is
// constructed once and injected wherever an Embedder is needed - no
// package-level singletons, so tests can swap in a fake.
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

// NewEmbedder builds the configured provider. Only "google" is implemented.
func NewEmbedder(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*GeminiEmbedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		return NewGeminiEmbedder(ctx, cfg, metrics)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*GeminiEmbedder, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	// RPM limit with some buffer
	rpm := cfg.EmbedRPM
	if rpm <= 0 {
		rpm = 100
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), rpm/10+1)

	return &GeminiEmbedder{
		client:      client,
		model:       cfg.GoogleEmbeddingsModel,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

func (g *GeminiEmbedder) Model() string {
	return g.model
}

// Embed returns the embedding vector for text. Calls are rate limited and go
// through the circuit breaker; an open breaker fails fast instead of piling
// requests onto a degraded provider.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.EmbeddingModel(g.model)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]float32), nil
}

// Close releases the underlying API client.
func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
