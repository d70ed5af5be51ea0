package dto

import (
	"encoding/json"
	"time"
)

// AssignmentRequest captures query parameters for /history/assignments.
type AssignmentRequest struct {
	Date     string `form:"date" binding:"required"`
	LayerKey string `form:"layer" binding:"required"`
}

// AssignmentResponse is one frozen historical assignment.
type AssignmentResponse struct {
	Date       string    `json:"date"`
	LayerKey   string    `json:"layer_key"`
	Person     string    `json:"person"`
	VersionID  int64     `json:"version_id"`
	IsOverride bool      `json:"is_override"`
	FrozenAt   time.Time `json:"frozen_at"`
}

// VersionResponse describes one schedule version without its full document.
type VersionResponse struct {
	ID            int64     `json:"id"`
	EffectiveDate string    `json:"effective_date"`
	ContentHash   string    `json:"content_hash"`
	Description   string    `json:"description,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// ScheduleResponse pairs version metadata with its frozen document.
type ScheduleResponse struct {
	Version  VersionResponse `json:"version"`
	Document json.RawMessage `json:"document"`
}

// CreateVersionRequest captures the body for POST /history/versions.
type CreateVersionRequest struct {
	Description string `json:"description" binding:"required,max=500"`
	CreatedBy   string `json:"created_by" binding:"max=100"`
}

// CleanupRequest captures the body for POST /history/cleanup.
type CleanupRequest struct {
	RetentionMonths int `json:"retention_months" binding:"omitempty,min=1,max=120"`
}
