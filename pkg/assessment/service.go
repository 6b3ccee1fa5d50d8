package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/observability/metrics"
	"github.com/geririsk/platform/pkg/pipeline"
	"github.com/geririsk/platform/pkg/uploads"
	"github.com/sirupsen/logrus"
)

const (
	EventUploaded = "wearable.uploaded"
	EventAssessed = "wearable.assessed"

	eventSource = "assessment-service"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Service struct {
	store            *uploads.Store
	pipeline         *pipeline.Pipeline
	cache            *Cache
	uploadEvents     Publisher
	assessmentEvents Publisher
}

// NewService wires the request-level operations. cache and both publishers
// may be nil.
func NewService(store *uploads.Store, pipe *pipeline.Pipeline, cache *Cache, uploadEvents, assessmentEvents Publisher) *Service {
	return &Service{
		store:            store,
		pipeline:         pipe,
		cache:            cache,
		uploadEvents:     uploadEvents,
		assessmentEvents: assessmentEvents,
	}
}

// Upload validates, stores and processes a file synchronously.
func (s *Service) Upload(ctx context.Context, name string, data []byte) (*models.ProcessResponse, error) {
	if err := ValidateUpload(name); err != nil {
		metrics.IncUploadsRejected()
		return nil, err
	}
	metrics.IncUploadsReceived()

	up, err := s.store.Save(ctx, name, data, uploads.StatusStored)
	if err != nil {
		logger.Log.WithError(err).WithField("file", name).Error("failed to store upload")
		return nil, &StorageError{Op: "save", Err: err}
	}
	return s.process(ctx, up, data, true)
}

// UploadAsync validates and stores a file, then hands it to the worker via
// an upload event.
func (s *Service) UploadAsync(ctx context.Context, name string, data []byte) (*models.UploadAccepted, error) {
	if s.uploadEvents == nil {
		return nil, ErrAsyncDisabled
	}
	if err := ValidateUpload(name); err != nil {
		metrics.IncUploadsRejected()
		return nil, err
	}
	metrics.IncUploadsReceived()

	up, err := s.store.Save(ctx, name, data, uploads.StatusQueued)
	if err != nil {
		logger.Log.WithError(err).WithField("file", name).Error("failed to store upload")
		return nil, &StorageError{Op: "save", Err: err}
	}

	payload := map[string]interface{}{
		"upload_id":   up.ID,
		"file":        up.FileName,
		"file_path":   up.FilePath,
		"uploaded_at": up.UploadedAt,
	}
	if err := s.uploadEvents.PublishEvent(ctx, EventUploaded, eventSource, payload); err != nil {
		logger.Log.WithError(err).WithField("upload_id", up.ID).Error("failed to publish upload event")
		_ = s.store.Repository().MarkFailed(ctx, up.ID, err)
		return nil, fmt.Errorf("publishing upload event: %w", err)
	}

	return &models.UploadAccepted{
		UploadID:  up.ID,
		File:      up.FileName,
		Status:    uploads.StatusQueued,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ProcessLatest reruns the pipeline over the most recent upload.
func (s *Service) ProcessLatest(ctx context.Context) (*models.ProcessResponse, error) {
	up, data, err := s.store.OpenLatest(ctx)
	if err != nil {
		if errors.Is(err, uploads.ErrNoUploads) {
			return nil, err
		}
		logger.Log.WithError(err).WithField("stage", "load").Error("failed to load latest upload")
		return nil, &StorageError{Op: "load latest", Err: err}
	}
	return s.process(ctx, up, data, true)
}

// ProcessUpload runs the pipeline over a stored upload. The worker calls it
// for queued uploads.
func (s *Service) ProcessUpload(ctx context.Context, id string) (*models.ProcessResponse, error) {
	up, data, err := s.store.Open(ctx, id)
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			return nil, err
		}
		logger.Log.WithError(err).WithField("upload_id", id).Error("failed to load upload")
		return nil, &StorageError{Op: "load", Err: err}
	}
	latest := false
	if newest, err := s.store.Repository().Latest(ctx); err == nil && newest.ID == up.ID {
		latest = true
	}
	return s.process(ctx, up, data, latest)
}

// Assessment returns the result for one upload: cached, then the stored
// snapshot, then a fresh run.
func (s *Service) Assessment(ctx context.Context, id string) (*models.ProcessResponse, error) {
	if resp, ok := s.cached(ctx, id); ok {
		return resp, nil
	}

	up, err := s.store.Repository().Get(ctx, id)
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	snap, ok, err := up.Snapshot()
	if err != nil {
		logger.Log.WithError(err).WithField("upload_id", id).Warn("discarding unreadable snapshot")
	}
	if ok && err == nil {
		s.remember(ctx, snap, false)
		return &snap, nil
	}
	return s.ProcessUpload(ctx, id)
}

// LatestAssessment returns the most recent result without rerunning when a
// cached one exists.
func (s *Service) LatestAssessment(ctx context.Context) (*models.ProcessResponse, error) {
	resp, ok, err := s.cache.Latest(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("assessment cache unavailable")
	}
	if ok {
		metrics.IncCacheHits()
		return resp, nil
	}
	return s.ProcessLatest(ctx)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]models.UploadSummary, error) {
	rows, err := s.store.Repository().Recent(ctx, limit)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	out := make([]models.UploadSummary, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Summary())
	}
	return out, nil
}

func (s *Service) process(ctx context.Context, up *uploads.Upload, data []byte, latest bool) (*models.ProcessResponse, error) {
	entry := logger.Log.WithFields(logrus.Fields{
		"upload_id": up.ID,
		"file":      up.FileName,
	})

	res, err := s.pipeline.Run(ctx, data)
	if err != nil {
		metrics.IncAssessmentsFailed()
		entry.WithError(err).WithField("stage", "pipeline").Error("assessment failed")
		if markErr := s.store.Repository().MarkFailed(ctx, up.ID, err); markErr != nil {
			entry.WithError(markErr).Warn("failed to record assessment failure")
		}
		return nil, err
	}

	resp := res.Response(up.ID, up.FileName)
	if err := s.store.Repository().SaveResult(ctx, up.ID, resp); err != nil {
		entry.WithError(err).WithField("stage", "snapshot").Warn("failed to save assessment snapshot")
	}
	s.remember(ctx, resp, latest)

	if s.assessmentEvents != nil {
		payload := map[string]interface{}{
			"upload_id":   up.ID,
			"file":        up.FileName,
			"aggregates":  resp.Aggregates,
			"predictions": resp.Predictions,
			"fallback":    res.Fallback,
		}
		if err := s.assessmentEvents.PublishEvent(ctx, EventAssessed, eventSource, payload); err != nil {
			entry.WithError(err).WithField("stage", "publish").Warn("failed to publish assessment event")
		}
	}

	metrics.IncAssessmentsCompleted()
	entry.WithFields(logrus.Fields{
		"records": resp.RecordCount,
		"skipped": resp.Skipped,
		"cardiac": resp.Predictions.CardiacRisk.Level,
	}).Info("assessment completed")
	return &resp, nil
}

func (s *Service) cached(ctx context.Context, id string) (*models.ProcessResponse, bool) {
	resp, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		logger.Log.WithError(err).WithField("upload_id", id).Warn("assessment cache unavailable")
		return nil, false
	}
	if ok {
		metrics.IncCacheHits()
	}
	return resp, ok
}

func (s *Service) remember(ctx context.Context, resp models.ProcessResponse, latest bool) {
	if err := s.cache.Put(ctx, resp, latest); err != nil {
		logger.Log.WithError(err).WithField("upload_id", resp.UploadID).Warn("failed to cache assessment")
	}
}
