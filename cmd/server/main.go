// Package main runs the recording pipeline HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classcribe/backend/config"
	"github.com/classcribe/backend/internal/auth"
	"github.com/classcribe/backend/internal/ingest"
	"github.com/classcribe/backend/internal/middleware"
	"github.com/classcribe/backend/internal/recordings"
	"github.com/classcribe/backend/internal/summarizer"
	"github.com/classcribe/backend/internal/transcription"
	"github.com/classcribe/backend/internal/worker"
	"github.com/classcribe/backend/pkg/database"
	"github.com/classcribe/backend/pkg/queue"
	"github.com/classcribe/backend/pkg/redis"
	"github.com/classcribe/backend/pkg/response"
	"github.com/classcribe/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.New(ctx, storage.Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	// Expensive handles are built once here and shared read-only across
	// requests; nothing below is re-initialized per call.
	provider, err := transcription.New(cfg.Transcription)
	if err != nil {
		logger.Fatal("transcription backend", zap.Error(err))
	}
	summaryBackend := summarizer.NewHTTPBackend(
		cfg.Summarization.Endpoint,
		cfg.Summarization.APIKey,
		cfg.Summarization.MaxSummaryLength,
		cfg.Summarization.MinSummaryLength,
		cfg.Summarization.RequestTimeout,
	)
	chunked := summarizer.New(summaryBackend, cfg.Summarization.ChunkBudget, cfg.Summarization.MinMeaningfulLength)

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	guard := ingest.NewGuard(cfg.Upload.MaxFileSize, cfg.Upload.TempDir)
	jobQueue := queue.New(rdb.Client, logger)

	recordingRepo := recordings.NewRepository(pool)
	recordingSvc := recordings.NewService(
		recordingRepo, s3Client, provider, chunked,
		cfg.Transcription.StageTimeout, cfg.Summarization.StageTimeout,
		logger,
	)
	recordingHandler := recordings.NewHandler(recordingSvc, guard, s3Client, jobQueue, cfg.Worker.AutoProcess, logger)
	pipeline := worker.NewPipeline(recordingSvc, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (bearer token required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/recordings", recordingHandler.Upload)
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.GetByID)
		api.GET("/recordings/:id/download-url", recordingHandler.GenerateDownloadURL)
		api.POST("/recordings/:id/transcribe", recordingHandler.Transcribe)
		api.POST("/recordings/:id/summarize", recordingHandler.Summarize)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: cfg.ServerWriteTimeout(),
	}

	// Embedded background worker (transcription/summarization jobs)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go pipeline.Run(workerCtx)
	logger.Info("pipeline worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
