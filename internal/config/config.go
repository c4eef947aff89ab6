package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          string
	DatabasePath  string
	MigrationsDir string
	LogLevel      string

	// S3
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool

	// AI provider (OpenAI-compatible)
	AIBaseURL         string
	AIAPIKey          string
	CompletionModel   string
	EmbeddingModel    string
	EmbeddingBatch    int
	ProviderRetries   int
	CompletionTimeout time.Duration
	EmbeddingTimeout  time.Duration
	MaxInputChars     int

	// Chunking
	ChunkSize        int
	ChunkOverlap     int
	BoundaryLookBack int

	// Retrieval
	TopK          int
	ContextBudget int
	HistoryWindow int

	// Pipeline
	SummarizationEnabled  bool
	RiskExtractionEnabled bool
	UploadConcurrency     int
	MaxFileSize           int64

	// Vector store; empty keeps the index in memory
	VectorDataDir string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "data/docuchat.db"),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", "internal/db/migrations"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "documents"),
		S3UseSSL:          getEnv("S3_USE_SSL", "false") == "true",

		AIBaseURL:         getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:          getEnv("AI_API_KEY", ""),
		CompletionModel:   getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBatch:    getEnvInt("EMBEDDING_BATCH_SIZE", 100),
		ProviderRetries:   getEnvInt("PROVIDER_MAX_RETRIES", 3),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		EmbeddingTimeout:  getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		MaxInputChars:     getEnvInt("MAX_INPUT_CHARS", 24000),

		ChunkSize:        getEnvInt("CHUNK_SIZE", 2000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		BoundaryLookBack: getEnvInt("CHUNK_BOUNDARY_LOOKBACK", 200),

		TopK:          getEnvInt("RAG_TOP_K", 5),
		ContextBudget: getEnvInt("RAG_CONTEXT_BUDGET", 6000),
		HistoryWindow: getEnvInt("RAG_HISTORY_WINDOW", 10),

		SummarizationEnabled:  getEnv("SUMMARIZATION_ENABLED", "true") == "true",
		RiskExtractionEnabled: getEnv("RISK_EXTRACTION_ENABLED", "false") == "true",
		UploadConcurrency:     getEnvInt("UPLOAD_CONCURRENCY", 4),
		MaxFileSize:           int64(getEnvInt("MAX_FILE_SIZE", 10*1024*1024)),

		VectorDataDir: getEnv("VECTOR_DATA_DIR", "data/vectors"),
	}

	if cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY is required")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
