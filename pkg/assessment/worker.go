package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/geririsk/platform/pkg/common/kafka"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/csvparse"
	"github.com/geririsk/platform/pkg/uploads"
)

// HandleUploadEvent processes one upload event for the worker. Inputs that can
// never succeed are wrapped with kafka.ErrPermanent so the message is
// committed; any other failure is returned for a retry. Other event types are
// ignored.
func (s *Service) HandleUploadEvent(ctx context.Context, event models.Event) error {
	if event.Type != EventUploaded {
		return nil
	}
	id, _ := event.Data["upload_id"].(string)
	if id == "" {
		return fmt.Errorf("event %s without upload_id: %w", event.ID, kafka.ErrPermanent)
	}

	_, err := s.ProcessUpload(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, uploads.ErrNotFound), csvparse.IsStructuralError(err):
		return fmt.Errorf("upload %s: %v: %w", id, err, kafka.ErrPermanent)
	default:
		return err
	}
}
