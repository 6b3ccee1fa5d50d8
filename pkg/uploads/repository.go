package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geririsk/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("upload not found")
	ErrNoUploads = errors.New("No uploads found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Upload{})
}

func (r *Repository) Create(ctx context.Context, up *Upload) error {
	if up.UploadedAt.IsZero() {
		up.UploadedAt = time.Now().UTC()
	}
	if up.Status == "" {
		up.Status = StatusStored
	}
	return r.db.WithContext(ctx).Create(up).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Upload, error) {
	var up Upload
	result := r.db.WithContext(ctx).First(&up, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &up, nil
}

// Latest returns the most recently uploaded file.
func (r *Repository) Latest(ctx context.Context) (*Upload, error) {
	var up Upload
	result := r.db.WithContext(ctx).Order("uploaded_at DESC").Order("id DESC").Limit(1).Find(&up)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNoUploads
	}
	return &up, nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Upload
	err := r.db.WithContext(ctx).Order("uploaded_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Upload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": status,
			"error":  errMsg,
		}).Error
}

// SaveResult stores the assessment snapshot on the upload row.
func (r *Repository) SaveResult(ctx context.Context, id string, resp models.ProcessResponse) error {
	aggregates, err := toJSONMap(resp.Aggregates)
	if err != nil {
		return fmt.Errorf("encoding aggregates: %w", err)
	}
	predictions, err := toJSONMap(resp.Predictions)
	if err != nil {
		return fmt.Errorf("encoding predictions: %w", err)
	}
	notes, err := toJSONMap(snapshotNotes{Collisions: resp.Collisions, Warnings: resp.Warnings})
	if err != nil {
		return fmt.Errorf("encoding notes: %w", err)
	}
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&Upload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       StatusProcessed,
			"error":        "",
			"record_count": resp.RecordCount,
			"skipped":      resp.Skipped,
			"aggregates":   aggregates,
			"predictions":  predictions,
			"notes":        notes,
			"processed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.UpdateStatus(ctx, id, StatusFailed, msg)
}

// Snapshot rebuilds the stored assessment for a processed upload. ok is false
// when the upload has never been processed.
func (up *Upload) Snapshot() (resp models.ProcessResponse, ok bool, err error) {
	if up.Status != StatusProcessed || up.Predictions == nil {
		return resp, false, nil
	}
	resp = models.ProcessResponse{
		UploadID:    up.ID,
		File:        up.FileName,
		RecordCount: up.RecordCount,
		Skipped:     up.Skipped,
	}
	if err := fromJSONMap(up.Aggregates, &resp.Aggregates); err != nil {
		return resp, false, err
	}
	if err := fromJSONMap(up.Predictions, &resp.Predictions); err != nil {
		return resp, false, err
	}
	if up.Notes != nil {
		var notes snapshotNotes
		if err := fromJSONMap(up.Notes, &notes); err != nil {
			return resp, false, err
		}
		resp.Collisions, resp.Warnings = notes.Collisions, notes.Warnings
	}
	return resp, true, nil
}

type snapshotNotes struct {
	Collisions []models.KeyCollision `json:"collisions,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
}

func (up *Upload) Summary() models.UploadSummary {
	return models.UploadSummary{
		ID:         up.ID,
		FileName:   up.FileName,
		FilePath:   up.FilePath,
		Status:     up.Status,
		Error:      up.Error,
		UploadedAt: up.UploadedAt,
	}
}

func toJSONMap(v interface{}) (datatypes.JSONMap, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m datatypes.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromJSONMap(m datatypes.JSONMap, out interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
