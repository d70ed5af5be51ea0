package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/oncall-api/internal/models"
)

// VersionRepository persists immutable schedule snapshots. Rows are only
// appended or marked inactive, never updated in place or deleted.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs a version repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Create appends a new schedule version and fills in its assigned ID.
func (r *VersionRepository) Create(ctx context.Context, version *models.ScheduleVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	version.Active = true
	const query = `INSERT INTO schedule_versions (effective_date, content_hash, document, description, created_by, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.GetContext(ctx, &version.ID, query,
		version.EffectiveDate,
		version.ContentHash,
		version.Document,
		version.Description,
		version.CreatedBy,
		version.Active,
		version.CreatedAt,
	); err != nil {
		return fmt.Errorf("create schedule version: %w", err)
	}
	return nil
}

// EffectiveFor returns the latest version whose effective date is on or
// before the given date. Ties break toward the latest effective date, then
// the latest insertion.
func (r *VersionRepository) EffectiveFor(ctx context.Context, date string) (*models.ScheduleVersion, error) {
	const query = `SELECT id, effective_date, content_hash, document, description, created_by, active, created_at
FROM schedule_versions WHERE effective_date <= $1 ORDER BY effective_date DESC, id DESC LIMIT 1`
	var version models.ScheduleVersion
	if err := r.db.GetContext(ctx, &version, query, date); err != nil {
		return nil, err
	}
	return &version, nil
}

// List returns the most recent versions, newest first.
func (r *VersionRepository) List(ctx context.Context, limit int) ([]models.ScheduleVersion, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, effective_date, content_hash, document, description, created_by, active, created_at
FROM schedule_versions ORDER BY effective_date DESC, id DESC LIMIT $1`
	var versions []models.ScheduleVersion
	if err := r.db.SelectContext(ctx, &versions, query, limit); err != nil {
		return nil, fmt.Errorf("list schedule versions: %w", err)
	}
	return versions, nil
}

// DeactivateBefore marks versions older than the cutoff date inactive,
// preserving them for audit continuity.
func (r *VersionRepository) DeactivateBefore(ctx context.Context, cutoffDate string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE schedule_versions SET active = FALSE WHERE effective_date < $1 AND active",
		cutoffDate,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate schedule versions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate schedule versions: %w", err)
	}
	return n, nil
}
