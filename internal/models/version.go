package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ScheduleVersion is an immutable snapshot of the full schedule document,
// effective from EffectiveDate until superseded by a later version.
type ScheduleVersion struct {
	ID            int64          `db:"id" json:"id"`
	EffectiveDate string         `db:"effective_date" json:"effective_date"`
	ContentHash   string         `db:"content_hash" json:"content_hash"`
	Document      types.JSONText `db:"document" json:"document"`
	Description   string         `db:"description" json:"description,omitempty"`
	CreatedBy     string         `db:"created_by" json:"created_by,omitempty"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// HistoricalAssignment is a permanently frozen record of who was on call for
// a specific date and layer. Once written it is never overwritten.
type HistoricalAssignment struct {
	ID         string    `db:"id" json:"id"`
	Date       string    `db:"date" json:"date"`
	LayerKey   string    `db:"layer_key" json:"layer_key"`
	Person     string    `db:"person" json:"person"`
	VersionID  int64     `db:"version_id" json:"version_id"`
	OverrideID *string   `db:"override_id" json:"override_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
