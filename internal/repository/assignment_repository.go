package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/oncall-api/internal/models"
)

// AssignmentRepository persists frozen historical assignments. The unique
// (date, layer_key) constraint plus insert-if-absent semantics make the
// first-ever write the permanent truth.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Insert writes the record unless one already exists for the same date and
// layer. It reports whether this call performed the insert; a duplicate is
// not an error.
func (r *AssignmentRepository) Insert(ctx context.Context, rec *models.HistoricalAssignment) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO historical_assignments (id, date, layer_key, person, version_id, override_id, created_at)
VALUES (:id, :date, :layer_key, :person, :version_id, :override_id, :created_at)
ON CONFLICT (date, layer_key) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return false, fmt.Errorf("insert historical assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert historical assignment: %w", err)
	}
	return n > 0, nil
}

// Find fetches the frozen record for a date and layer.
func (r *AssignmentRepository) Find(ctx context.Context, date, layerKey string) (*models.HistoricalAssignment, error) {
	const query = `SELECT id, date, layer_key, person, version_id, override_id, created_at
FROM historical_assignments WHERE date = $1 AND layer_key = $2`
	var rec models.HistoricalAssignment
	if err := r.db.GetContext(ctx, &rec, query, date, layerKey); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListMonth returns every frozen assignment for a calendar month (YYYY-MM),
// ordered by date then layer.
func (r *AssignmentRepository) ListMonth(ctx context.Context, month string) ([]models.HistoricalAssignment, error) {
	const query = `SELECT id, date, layer_key, person, version_id, override_id, created_at
FROM historical_assignments WHERE date LIKE $1 || '-%' ORDER BY date ASC, layer_key ASC`
	var recs []models.HistoricalAssignment
	if err := r.db.SelectContext(ctx, &recs, query, month); err != nil {
		return nil, fmt.Errorf("list assignments for month: %w", err)
	}
	return recs, nil
}

// DeleteBefore removes assignments older than the cutoff date.
func (r *AssignmentRepository) DeleteBefore(ctx context.Context, cutoffDate string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM historical_assignments WHERE date < $1", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete historical assignments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete historical assignments: %w", err)
	}
	return n, nil
}
