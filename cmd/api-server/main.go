package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geririsk/platform/pkg/assessment"
	"github.com/geririsk/platform/pkg/common/config"
	"github.com/geririsk/platform/pkg/common/database"
	"github.com/geririsk/platform/pkg/common/kafka"
	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/gateway/middleware"
	"github.com/geririsk/platform/pkg/observability/metrics"
	"github.com/geririsk/platform/pkg/pipeline"
	"github.com/geririsk/platform/pkg/uploads"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init("api-server")
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

	uploadEvents := kafka.NewProducer(cfg.KafkaBrokers, cfg.UploadTopic)
	defer uploadEvents.Close()
	assessmentEvents := kafka.NewProducer(cfg.KafkaBrokers, cfg.AssessmentTopic)
	defer assessmentEvents.Close()

	svc := assessment.NewService(uploads.NewStore(blobs, repo), pipe, cache, uploadEvents, assessmentEvents)
	handler := assessment.NewHTTPHandler(svc, cfg.MaxUploadBytes)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(cfg.AuthToken))
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	api.Use(middleware.BodyLimit(cfg.MaxUploadBytes))
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      middleware.CORS(cfg.CORSAllowedOrigins)(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":   cfg.ServerHost,
			"port":   cfg.ServerPort,
			"scorer": cfg.RiskScorer,
		}).Info("API server started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("API server stopped")
}
