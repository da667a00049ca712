package main

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"saas-agency-platform/internal/ai"
	"saas-agency-platform/internal/config"
	"saas-agency-platform/internal/ingest"
	"saas-agency-platform/internal/logger"
	"saas-agency-platform/internal/queue"
	"saas-agency-platform/internal/storage"
	"saas-agency-platform/internal/store"
	"saas-agency-platform/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	embedder, err := ai.NewEmbedder(context.Background(), cfg, metrics)
	if err != nil {
		log.Fatal("Failed to init embeddings client:", err)
	}
	defer embedder.Close()

	resources := store.NewMongoResourceStore(db)
	chunks := store.NewMongoChunkStore(db, cfg)
	files := storage.NewManager(cfg.FileStorageDir, cfg.MaxFileSize)

	pipeline := ingest.NewPipeline(cfg, resources, chunks, embedder, files, metrics)
	processor := queue.NewProcessor(pipeline)

	// Reaper: a worker crash leaves resources in indexing; flip them to
	// error after the cutoff so callers can retry them.
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.Every(5).Minutes().Do(func() {
		cutoff := time.Now().Add(-time.Duration(cfg.ReapAfterMinutes) * time.Minute)
		n, err := resources.ReapStale(context.Background(), cutoff)
		if err != nil {
			logger.Error("Reaper failed", "error", err)
			return
		}
		if n > 0 {
			logger.Warn("Reaped stuck resources", "count", n)
		}
	})
	scheduler.StartAsync()
	defer scheduler.Stop()

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestResource, processor.HandleIngest)

	log.Println("Starting ingestion worker...")
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
