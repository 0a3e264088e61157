package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rangganata/ai-manager/internal/metrics"
	"github.com/rangganata/ai-manager/internal/repository"
)

// Service records user activity and answers notification queries.
//
// All Record* methods are best-effort: storage failures are logged and
// swallowed so that logging can never fail the operation being logged.
type Service struct {
	logs   repository.ActivityLogRepository
	logins repository.LoginHistoryRepository
	logger *slog.Logger
	// Entries are rendered in the activity feed UI; string detail values
	// are stripped of HTML before they are persisted.
	sanitizer *bluemonday.Policy
}

// NewService creates a new activity Service.
func NewService(logs repository.ActivityLogRepository, logins repository.LoginHistoryRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logs:      logs,
		logins:    logins,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Record appends an activity entry for userID. Unknown activity types are
// recorded as-is but flagged in the log so the enum stays authoritative.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, activityType Type, details repository.Details, meta RequestMeta) {
	if !activityType.IsValid() {
		s.logger.Warn("unknown activity type",
			slog.String("activity_type", string(activityType)),
			slog.String("user_id", userID.String()),
		)
	}

	entry := &repository.ActivityLog{
		UserID:       userID,
		ActivityType: string(activityType),
		Details:      s.sanitizeDetails(details),
		IPAddress:    optional(meta.IPAddress),
		UserAgent:    optional(meta.UserAgent),
	}

	if err := s.logs.Create(ctx, entry); err != nil {
		metrics.ActivityRecordFailures.Inc()
		s.logger.Error("failed to record activity",
			slog.String("activity_type", string(activityType)),
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	metrics.ActivityEntriesRecorded.WithLabelValues(string(activityType)).Inc()
}

// RecordLogin appends a login-history row plus a login activity entry and
// returns the login-history ID for later logout correlation. On failure the
// attempt is still recorded as a failed login. Never fails the caller; a nil
// ID means the history row could not be written.
func (s *Service) RecordLogin(ctx context.Context, userID uuid.UUID, success bool, failureReason string, meta RequestMeta) *uuid.UUID {
	history := &repository.LoginHistory{
		UserID:    userID,
		LoginTime: time.Now().UTC(),
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
		Success:   success,
	}
	if !success && failureReason != "" {
		history.FailureReason = optional(failureReason)
	}

	var historyID *uuid.UUID
	if err := s.logins.Create(ctx, history); err != nil {
		s.logger.Error("failed to record login history",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
	} else {
		historyID = &history.ID
	}

	details := repository.Details{"success": success}
	if !success && failureReason != "" {
		details["failure_reason"] = failureReason
	}
	s.Record(ctx, userID, TypeLogin, details, meta)

	return historyID
}

// RecordLogout appends a logout activity entry. When the caller still holds
// the login-history ID from RecordLogin, the matching row gets its logout
// time stamped; otherwise only the activity entry is written.
func (s *Service) RecordLogout(ctx context.Context, userID uuid.UUID, loginHistoryID *uuid.UUID, meta RequestMeta) {
	if loginHistoryID != nil {
		if err := s.logins.SetLogoutTime(ctx, *loginHistoryID, time.Now().UTC()); err != nil {
			s.logger.Error("failed to stamp logout time",
				slog.String("user_id", userID.String()),
				slog.String("login_history_id", loginHistoryID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.Record(ctx, userID, TypeLogout, nil, meta)
}

// CountUnread returns the number of unread entries for userID.
func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.logs.CountUnread(ctx, userID)
}

// Count returns the total number of entries for userID.
func (s *Service) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.logs.Count(ctx, userID)
}

// MarkAllRead marks all of userID's unread entries read and returns the
// number of entries affected.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.logs.MarkAllRead(ctx, userID)
}

// List returns userID's entries, most recent first, with the total count.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]repository.ActivityLog, int, error) {
	return s.logs.List(ctx, userID, repository.ListActivityParams{Page: page, Limit: limit})
}

// LoginHistory returns userID's most recent login attempts.
func (s *Service) LoginHistory(ctx context.Context, userID uuid.UUID, limit int) ([]repository.LoginHistory, error) {
	return s.logins.ListByUser(ctx, userID, limit)
}

// sanitizeDetails strips HTML from string-valued details. The payload is
// otherwise opaque to this service.
func (s *Service) sanitizeDetails(details repository.Details) repository.Details {
	if details == nil {
		return nil
	}
	clean := make(repository.Details, len(details))
	for k, v := range details {
		if str, ok := v.(string); ok {
			clean[k] = s.sanitizer.Sanitize(str)
		} else {
			clean[k] = v
		}
	}
	return clean
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
