// Package main runs the standalone pipeline worker (transcription and
// summarization jobs), for deployments that keep heavy backend calls out of
// the API process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classcribe/backend/config"
	"github.com/classcribe/backend/internal/recordings"
	"github.com/classcribe/backend/internal/summarizer"
	"github.com/classcribe/backend/internal/transcription"
	"github.com/classcribe/backend/internal/worker"
	"github.com/classcribe/backend/pkg/database"
	"github.com/classcribe/backend/pkg/queue"
	"github.com/classcribe/backend/pkg/redis"
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

	recordingRepo := recordings.NewRepository(pool)
	recordingSvc := recordings.NewService(
		recordingRepo, s3Client, provider, chunked,
		cfg.Transcription.StageTimeout, cfg.Summarization.StageTimeout,
		logger,
	)
	pipeline := worker.NewPipeline(recordingSvc, queue.New(rdb.Client, logger), logger)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	logger.Info("pipeline worker starting")
	pipeline.Run(runCtx)
	logger.Info("pipeline worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
