package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// JWT token secrets
	AccessSecret  string
	RefreshSecret string
	BcryptCost    int

	// Uploads
	MaxFileSize    int64
	AllowedTypes   []string
	FileStorageDir string

	// Chunking. Token budgets are converted to character budgets with the
	// CharsPerToken heuristic; the same constant is used for the persisted
	// token estimate so budgeting stays consistent end to end.
	ChunkTargetTokens  int
	ChunkOverlapTokens int
	CharsPerToken      int
	MinChunkChars      int

	// Embeddings
	GeminiAPIKey          string
	EmbeddingsProvider    string // "google" (default)
	GoogleEmbeddingsModel string // e.g. "text-embedding-004"
	EmbedConcurrency      int
	EmbedRPM              int

	// Retrieval defaults
	SimilarityThreshold float64
	RetrievalLimit      int

	// MongoDB Atlas vector search; when disabled the store falls back to an
	// in-process cosine scan over the brand's chunks.
	VectorSearchEnabled bool
	VectorIndexName     string
	VectorDimensions    int

	// Redis (asynq queue + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Ingestion worker
	IngestTimeoutMinutes int
	ReapAfterMinutes     int

	// Link fetching
	CrawlRenderJS        bool
	CrawlTimeoutSeconds  int
	CrawlMaxContentBytes int64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/agency_platform"),
		DBName:      getEnv("DB_NAME", "agency_platform"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),
		BcryptCost:    getEnvInt("BCRYPT_COST", 12),

		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES",
			"application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,text/plain"), ","),
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		ChunkTargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 1000),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 200),
		CharsPerToken:      getEnvInt("CHARS_PER_TOKEN", 4),
		MinChunkChars:      getEnvInt("MIN_CHUNK_CHARS", 10),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		EmbedConcurrency:      getEnvInt("EMBED_CONCURRENCY", 4),
		EmbedRPM:              getEnvInt("EMBED_RPM", 100),

		SimilarityThreshold: getEnvFloat64("SIMILARITY_THRESHOLD", 0.5),
		RetrievalLimit:      getEnvInt("RETRIEVAL_LIMIT", 5),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "brand_chunks_vector"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		IngestTimeoutMinutes: getEnvInt("INGEST_TIMEOUT_MINUTES", 10),
		ReapAfterMinutes:     getEnvInt("REAP_AFTER_MINUTES", 30),

		CrawlRenderJS:        getEnvBool("CRAWL_RENDER_JS", false),
		CrawlTimeoutSeconds:  getEnvInt("CRAWL_TIMEOUT_SECONDS", 30),
		CrawlMaxContentBytes: getEnvInt64("CRAWL_MAX_CONTENT_BYTES", 5242880), // 5MB
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkTargetTokens <= cfg.ChunkOverlapTokens {
		return nil, fmt.Errorf("CHUNK_TARGET_TOKENS must be greater than CHUNK_OVERLAP_TOKENS")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
