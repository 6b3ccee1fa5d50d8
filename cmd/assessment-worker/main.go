package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/geririsk/platform/pkg/assessment"
	"github.com/geririsk/platform/pkg/common/config"
	"github.com/geririsk/platform/pkg/common/database"
	"github.com/geririsk/platform/pkg/common/kafka"
	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/pipeline"
	"github.com/geririsk/platform/pkg/uploads"
)

func main() {
	logger.Init("assessment-worker")
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := uploads.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate upload tables")
	}
	blobs, err := uploads.NewLocalBlobStore(cfg.StorageDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open upload storage")
	}
	pipe, err := pipeline.FromConfig(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to configure risk scoring")
	}

	cache := assessment.NewCache(database.GetRedis(cfg), cfg.AssessmentCacheTTL)
	defer database.CloseRedis()

	assessmentEvents := kafka.NewProducer(cfg.KafkaBrokers, cfg.AssessmentTopic)
	defer assessmentEvents.Close()

	svc := assessment.NewService(uploads.NewStore(blobs, repo), pipe, cache, nil, assessmentEvents)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.UploadTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down assessment worker...")
		cancel()
	}()

	logger.Log.WithField("topic", cfg.UploadTopic).Info("Assessment worker started")
	if err := consumer.Consume(ctx, svc.HandleUploadEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Fatal("consumer stopped")
	}
	logger.Log.Info("Assessment worker stopped")
}
