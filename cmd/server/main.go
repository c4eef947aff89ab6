package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docuchat/docuchat-backend/internal/analytics"
	"github.com/docuchat/docuchat-backend/internal/chunker"
	"github.com/docuchat/docuchat-backend/internal/completion"
	"github.com/docuchat/docuchat-backend/internal/config"
	"github.com/docuchat/docuchat-backend/internal/db"
	"github.com/docuchat/docuchat-backend/internal/embedding"
	"github.com/docuchat/docuchat-backend/internal/extractor"
	"github.com/docuchat/docuchat-backend/internal/pipeline"
	"github.com/docuchat/docuchat-backend/internal/rag"
	"github.com/docuchat/docuchat-backend/internal/repository"
	"github.com/docuchat/docuchat-backend/internal/router"
	"github.com/docuchat/docuchat-backend/internal/services"
	"github.com/docuchat/docuchat-backend/internal/storage"
	"github.com/docuchat/docuchat-backend/internal/utils"
	"github.com/docuchat/docuchat-backend/internal/vectorstore"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	// Database
	database, err := db.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := db.RunMigrations(cfg.DatabasePath, cfg.MigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	// Object storage
	blobs, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", "error", err)
	}

	// Vector store
	vectors, err := vectorstore.NewChromemStore(cfg.VectorDataDir, logger)
	if err != nil {
		logger.Fatal("Failed to open vector store", "error", err)
	}

	// AI provider clients
	completer := completion.NewClient(completion.Config{
		BaseURL:       cfg.AIBaseURL,
		APIKey:        cfg.AIAPIKey,
		Model:         cfg.CompletionModel,
		MaxInputChars: cfg.MaxInputChars,
		MaxRetries:    cfg.ProviderRetries,
		Timeout:       cfg.CompletionTimeout,
	}, logger)
	embedder := embedding.NewClient(embedding.Config{
		BaseURL:    cfg.AIBaseURL,
		APIKey:     cfg.AIAPIKey,
		Model:      cfg.EmbeddingModel,
		BatchSize:  cfg.EmbeddingBatch,
		MaxRetries: cfg.ProviderRetries,
		Timeout:    cfg.EmbeddingTimeout,
	}, logger)

	ck, err := chunker.New(chunker.Config{
		MaxChunkSize:     cfg.ChunkSize,
		OverlapSize:      cfg.ChunkOverlap,
		BoundaryLookBack: cfg.BoundaryLookBack,
	})
	if err != nil {
		logger.Fatal("Invalid chunking configuration", "error", err)
	}

	// Repositories and collaborators
	docRepo := repository.NewDocumentRepository(database)
	chatRepo := repository.NewChatRepository(database)
	usage := analytics.NewSQLEmitter(database)

	pl := pipeline.New(
		docRepo,
		blobs,
		extractor.New(),
		completer,
		embedder,
		vectors,
		ck,
		usage,
		pipeline.Options{
			SummarizationEnabled:  cfg.SummarizationEnabled,
			RiskExtractionEnabled: cfg.RiskExtractionEnabled,
		},
		logger,
	)

	engine := rag.NewEngine(chatRepo, embedder, vectors, completer, usage, rag.Options{
		TopK:          cfg.TopK,
		ContextBudget: cfg.ContextBudget,
		HistoryWindow: cfg.HistoryWindow,
	}, logger)

	docService := services.NewDocumentService(docRepo, chatRepo, blobs, pl, completer, vectors, usage, services.Limits{
		MaxFileSize:       cfg.MaxFileSize,
		UploadConcurrency: cfg.UploadConcurrency,
	}, logger)
	chatService := services.NewChatService(chatRepo, engine, vectors, logger)

	handler := router.NewRouter(docService, chatService, cfg.MaxFileSize, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
