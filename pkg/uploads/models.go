package uploads

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusStored    = "stored"
	StatusQueued    = "queued"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Upload is the metadata row for one stored CSV file. Aggregates, Predictions
// and Notes (key collisions and scorer warnings) hold the snapshot of the last
// successful assessment.
type Upload struct {
	ID          string            `json:"id" gorm:"primaryKey;column:id"`
	FileName    string            `json:"file_name" gorm:"column:file_name"`
	FilePath    string            `json:"file_path" gorm:"column:file_path"`
	SizeBytes   int64             `json:"size_bytes" gorm:"column:size_bytes"`
	Status      string            `json:"status" gorm:"column:status;index"`
	Error       string            `json:"error,omitempty" gorm:"column:error"`
	RecordCount int               `json:"record_count" gorm:"column:record_count"`
	Skipped     int               `json:"skipped" gorm:"column:skipped"`
	Aggregates  datatypes.JSONMap `json:"aggregates,omitempty" gorm:"column:aggregates"`
	Predictions datatypes.JSONMap `json:"predictions,omitempty" gorm:"column:predictions"`
	Notes       datatypes.JSONMap `json:"notes,omitempty" gorm:"column:notes"`
	UploadedAt  time.Time         `json:"uploaded_at" gorm:"column:uploaded_at;index"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

func (Upload) TableName() string {
	return "uploads"
}
