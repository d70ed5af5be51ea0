package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/oncall-api/internal/models"
)

// OverrideRepository stores monthly override sets independently of schedule
// versions, so override history survives version churn.
type OverrideRepository struct {
	db *sqlx.DB
}

// NewOverrideRepository constructs an override repository.
func NewOverrideRepository(db *sqlx.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

type monthlyOverrideRow struct {
	Month     string    `db:"month"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Upsert stores the override set for a month, replacing any previous set.
func (r *OverrideRepository) Upsert(ctx context.Context, month string, overrides []models.Override) error {
	data, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("encode monthly overrides: %w", err)
	}
	now := time.Now().UTC()
	const query = `INSERT INTO monthly_overrides (month, data, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (month) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, month, data, now); err != nil {
		return fmt.Errorf("upsert monthly overrides: %w", err)
	}
	return nil
}

// Get fetches the override set stored for a month.
func (r *OverrideRepository) Get(ctx context.Context, month string) (*models.MonthlyOverrideSet, error) {
	const query = `SELECT month, data, created_at, updated_at FROM monthly_overrides WHERE month = $1`
	var row monthlyOverrideRow
	if err := r.db.GetContext(ctx, &row, query, month); err != nil {
		return nil, err
	}

	set := &models.MonthlyOverrideSet{
		Month:     row.Month,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Data, &set.Overrides); err != nil {
		return nil, fmt.Errorf("decode monthly overrides: %w", err)
	}
	return set, nil
}

// DeleteBefore removes override sets for months older than the cutoff.
func (r *OverrideRepository) DeleteBefore(ctx context.Context, cutoffMonth string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM monthly_overrides WHERE month < $1", cutoffMonth)
	if err != nil {
		return 0, fmt.Errorf("delete monthly overrides: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete monthly overrides: %w", err)
	}
	return n, nil
}
