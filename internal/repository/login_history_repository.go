package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Login history repository errors
var (
	ErrLoginHistoryNotFound = errors.New("login history entry not found")
)

// LoginHistoryRepository defines the interface for login history data access
type LoginHistoryRepository interface {
	Create(ctx context.Context, entry *LoginHistory) error
	SetLogoutTime(ctx context.Context, id uuid.UUID, logoutTime time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]LoginHistory, error)
}

// LoginHistoryRepo implements LoginHistoryRepository using PostgreSQL
type LoginHistoryRepo struct {
	db *sqlx.DB
}

// NewLoginHistoryRepo creates a new LoginHistoryRepo instance
func NewLoginHistoryRepo(db *sqlx.DB) *LoginHistoryRepo {
	return &LoginHistoryRepo{db: db}
}

// Create appends a login attempt record
func (r *LoginHistoryRepo) Create(ctx context.Context, entry *LoginHistory) error {
	query := `
		INSERT INTO login_history (user_id, login_time, ip_address, user_agent, success, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	loginTime := entry.LoginTime
	if loginTime.IsZero() {
		loginTime = time.Now().UTC()
		entry.LoginTime = loginTime
	}

	row := r.db.QueryRowxContext(ctx, query,
		entry.UserID,
		loginTime,
		entry.IPAddress,
		entry.UserAgent,
		entry.Success,
		entry.FailureReason,
	)
	return row.Scan(&entry.ID)
}

// SetLogoutTime stamps the logout time on a previously created entry
func (r *LoginHistoryRepo) SetLogoutTime(ctx context.Context, id uuid.UUID, logoutTime time.Time) error {
	query := `UPDATE login_history SET logout_time = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, logoutTime)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLoginHistoryNotFound
	}
	return nil
}

// ListByUser returns a user's most recent login attempts
func (r *LoginHistoryRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]LoginHistory, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, user_id, login_time, logout_time, ip_address, user_agent, success, failure_reason
		FROM login_history
		WHERE user_id = $1
		ORDER BY login_time DESC
		LIMIT $2
	`

	entries := []LoginHistory{}
	if err := r.db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []LoginHistory{}, nil
		}
		return nil, err
	}
	return entries, nil
}
