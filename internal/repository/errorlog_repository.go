package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Danilnaisov/praktika05/internal/models"
)

// ErrorLogRepository stores application error records for later review.
type ErrorLogRepository struct {
	db *sqlx.DB
}

// NewErrorLogRepository constructs an ErrorLogRepository.
func NewErrorLogRepository(db *sqlx.DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

// Create inserts one error record.
func (r *ErrorLogRepository) Create(ctx context.Context, entry *models.ErrorLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO error_logs (id, error_code, message, created_at)
        VALUES (:id, :error_code, :message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create error log: %w", err)
	}
	return nil
}

// ListRecent returns the newest error records, capped at limit.
func (r *ErrorLogRepository) ListRecent(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, error_code, message, created_at FROM error_logs ORDER BY created_at DESC LIMIT $1`
	var entries []models.ErrorLog
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	return entries, nil
}
