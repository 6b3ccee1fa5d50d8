package models

import (
	"time"
)

// Aggregates is the dataset-level statistics payload. Nullable fields are nil
// when the source column is absent or carries no valid numeric value.
type Aggregates struct {
	AvgHeartRate  *float64 `json:"avgHeartRate"`
	MaxHeartRate  *float64 `json:"maxHeartRate"`
	MinHeartRate  *float64 `json:"minHeartRate"`
	MinSpO2       *float64 `json:"minSpO2"`
	TotalSteps    float64  `json:"totalSteps"`
	RecordCount   int      `json:"recordCount"`
	CardiacEvents int      `json:"cardiacEvents"`
	SpO2Events    int      `json:"spo2Events"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskModerate, RiskHigh:
		return true
	}
	return false
}

type RiskAssessment struct {
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`
}

// RiskPayload is the scorer output, one assessment per risk category.
type RiskPayload struct {
	CardiacRisk     RiskAssessment `json:"cardiacRisk"`
	FallRisk        RiskAssessment `json:"fallRisk"`
	RespiratoryRisk RiskAssessment `json:"respiratoryRisk"`
}

// KeyCollision reports distinct source columns that normalized to one key.
type KeyCollision struct {
	Key     string   `json:"key"`
	Sources []string `json:"sources"`
}

// ProcessResponse is returned by the upload and process endpoints.
type ProcessResponse struct {
	UploadID    string         `json:"uploadId,omitempty"`
	File        string         `json:"file"`
	RecordCount int            `json:"recordCount"`
	Skipped     int            `json:"skipped"`
	Aggregates  Aggregates     `json:"aggregates"`
	Predictions RiskPayload    `json:"predictions"`
	Collisions  []KeyCollision `json:"collisions,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

type UploadAccepted struct {
	UploadID  string    `json:"uploadId"`
	File      string    `json:"file"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type UploadSummary struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ErrorResponse is the structured body for every failed request.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // wearable.uploaded, wearable.assessed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
