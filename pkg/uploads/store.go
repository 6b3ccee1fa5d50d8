package uploads

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/google/uuid"
)

// Store couples blob storage with the metadata repository.
type Store struct {
	blobs BlobStore
	repo  *Repository
	now   func() time.Time
}

func NewStore(blobs BlobStore, repo *Repository) *Store {
	return &Store{blobs: blobs, repo: repo, now: time.Now}
}

func (s *Store) Repository() *Repository {
	return s.repo
}

// Key is the storage path for an upload: uploads/<unix-millis>-<basename>.
func Key(name string, at time.Time) string {
	return fmt.Sprintf("uploads/%d-%s", at.UnixMilli(), filepath.Base(filepath.Clean("/"+name)))
}

// Save writes data and records its metadata row.
func (s *Store) Save(ctx context.Context, name string, data []byte, status string) (*Upload, error) {
	at := s.now().UTC()
	key := Key(name, at)
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	up := &Upload{
		ID:         uuid.New().String(),
		FileName:   filepath.Base(filepath.Clean("/" + name)),
		FilePath:   key,
		SizeBytes:  int64(len(data)),
		Status:     status,
		UploadedAt: at,
	}
	if err := s.repo.Create(ctx, up); err != nil {
		return nil, fmt.Errorf("recording upload: %w", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"upload_id": up.ID,
		"file":      up.FileName,
		"path":      key,
		"bytes":     len(data),
	}).Info("upload stored")
	return up, nil
}

// Open returns the metadata and bytes for id.
func (s *Store) Open(ctx context.Context, id string) (*Upload, []byte, error) {
	up, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.read(ctx, up)
	return up, data, err
}

// OpenLatest returns the most recent upload and its bytes.
func (s *Store) OpenLatest(ctx context.Context) (*Upload, []byte, error) {
	up, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.read(ctx, up)
	return up, data, err
}

func (s *Store) read(ctx context.Context, up *Upload) ([]byte, error) {
	data, err := s.blobs.Get(ctx, up.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", up.ID, err)
	}
	return data, nil
}
