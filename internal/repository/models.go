package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// User represents a user account in the database
type User struct {
	ID           uuid.UUID  `db:"id"`
	Email        string     `db:"email"`
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	IsActive     bool       `db:"is_active"`
}

// Details is the opaque key/value payload attached to an activity entry.
// Stored as JSONB.
type Details map[string]interface{}

// Value implements driver.Valuer for JSONB storage
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB retrieval
func (d *Details) Scan(src interface{}) error {
	if src == nil {
		*d = Details{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("unsupported type for activity details")
	}
}

// ActivityLog represents one append-only activity entry. Rows are immutable
// after insert except for the is_read flag, which only moves false -> true.
type ActivityLog struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	ActivityType string    `db:"activity_type"`
	Details      Details   `db:"details"`
	IPAddress    *string   `db:"ip_address"`
	UserAgent    *string   `db:"user_agent"`
	IsRead       bool      `db:"is_read"`
	CreatedAt    time.Time `db:"created_at"`
}

// LoginHistory represents one login attempt. LogoutTime is filled in later
// by a correlated logout, when the caller still holds the entry ID.
type LoginHistory struct {
	ID            uuid.UUID  `db:"id"`
	UserID        uuid.UUID  `db:"user_id"`
	LoginTime     time.Time  `db:"login_time"`
	LogoutTime    *time.Time `db:"logout_time"`
	IPAddress     *string    `db:"ip_address"`
	UserAgent     *string    `db:"user_agent"`
	Success       bool       `db:"success"`
	FailureReason *string    `db:"failure_reason"`
}

// ListActivityParams holds pagination parameters for listing activity entries
type ListActivityParams struct {
	Page  int
	Limit int
}
