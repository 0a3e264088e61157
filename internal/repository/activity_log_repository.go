package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Activity log repository errors
var (
	ErrActivityLogNotFound = errors.New("activity log entry not found")
)

// ActivityLogRepository defines the interface for activity log data access.
// Entries are append-only: nothing here deletes rows, and the only mutation
// is flipping is_read to true.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *ActivityLog) error
	List(ctx context.Context, userID uuid.UUID, params ListActivityParams) ([]ActivityLog, int, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ActivityLogRepo implements ActivityLogRepository using PostgreSQL
type ActivityLogRepo struct {
	db *sqlx.DB
}

// NewActivityLogRepo creates a new ActivityLogRepo instance
func NewActivityLogRepo(db *sqlx.DB) *ActivityLogRepo {
	return &ActivityLogRepo{db: db}
}

// Create appends a new activity entry. The store assigns id and created_at.
func (r *ActivityLogRepo) Create(ctx context.Context, entry *ActivityLog) error {
	query := `
		INSERT INTO activity_logs (user_id, activity_type, details, ip_address, user_agent, is_read)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id, created_at
	`

	row := r.db.QueryRowxContext(ctx, query,
		entry.UserID,
		entry.ActivityType,
		entry.Details,
		entry.IPAddress,
		entry.UserAgent,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return err
	}

	entry.IsRead = false
	return nil
}

// List retrieves activity entries for a user, most recent first, along with
// the total number of entries for pagination.
func (r *ActivityLogRepo) List(ctx context.Context, userID uuid.UUID, params ListActivityParams) ([]ActivityLog, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	total, err := r.Count(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, activity_type, details, ip_address, user_agent, is_read, created_at
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	entries := []ActivityLog{}
	offset := (params.Page - 1) * params.Limit
	if err := r.db.SelectContext(ctx, &entries, query, userID, params.Limit, offset); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Count returns the total number of activity entries for a user
func (r *ActivityLogRepo) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM activity_logs WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, err
	}
	return count, nil
}

// CountUnread returns the number of unread entries for a user
func (r *ActivityLogRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM activity_logs WHERE user_id = $1 AND is_read = false`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkAllRead marks every unread entry for a user as read and returns how
// many rows changed. Idempotent: a second call affects zero rows. Other
// users' entries are never touched.
func (r *ActivityLogRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE activity_logs SET is_read = true WHERE user_id = $1 AND is_read = false`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
