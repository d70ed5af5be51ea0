package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// MetadataRepository stores small system-level key/value state, e.g. the
// last cleanup timestamp.
type MetadataRepository struct {
	db *sqlx.DB
}

// NewMetadataRepository constructs a metadata repository.
func NewMetadataRepository(db *sqlx.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Set writes or replaces a metadata entry.
func (r *MetadataRepository) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO system_metadata (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// Get fetches a metadata value.
func (r *MetadataRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.db.GetContext(ctx, &value, "SELECT value FROM system_metadata WHERE key = $1", key); err != nil {
		return "", err
	}
	return value, nil
}
