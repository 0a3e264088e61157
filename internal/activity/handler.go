package activity

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	appctx "github.com/rangganata/ai-manager/internal/context"
	"github.com/rangganata/ai-manager/internal/repository"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EntryResponse is the JSON shape of one activity entry
type EntryResponse struct {
	ID           uuid.UUID          `json:"id"`
	ActivityType string             `json:"activity_type"`
	Details      repository.Details `json:"details,omitempty"`
	IPAddress    *string            `json:"ip_address,omitempty"`
	UserAgent    *string            `json:"user_agent,omitempty"`
	IsRead       bool               `json:"is_read"`
	CreatedAt    time.Time          `json:"created_at"`
}

// ListResponse is the paginated activity list payload
type ListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	Total   int             `json:"total"`
}

// Handler handles HTTP requests for the user activity log endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new activity Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /user-activity-logs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, total, err := h.service.List(r.Context(), userID, page, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list activity logs")
		return
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	resp := ListResponse{
		Entries: make([]EntryResponse, 0, len(entries)),
		Page:    page,
		Limit:   limit,
		Total:   total,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			ID:           e.ID,
			ActivityType: e.ActivityType,
			Details:      e.Details,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			IsRead:       e.IsRead,
			CreatedAt:    e.CreatedAt,
		})
	}

	h.writeSuccess(w, http.StatusOK, resp)
}

// Count handles GET /user-activity-logs/count.
// With ?filters[isRead][$eq]=false it returns the unread count, otherwise
// the total number of entries.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var count int
	var err error
	if r.URL.Query().Get("filters[isRead][$eq]") == "false" {
		count, err = h.service.CountUnread(r.Context(), userID)
	} else {
		count, err = h.service.Count(r.Context(), userID)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count activity logs")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]int{"count": count})
}

// LoginHistoryEntry is the JSON shape of one login attempt
type LoginHistoryEntry struct {
	ID            uuid.UUID  `json:"id"`
	LoginTime     time.Time  `json:"login_time"`
	LogoutTime    *time.Time `json:"logout_time,omitempty"`
	IPAddress     *string    `json:"ip_address,omitempty"`
	UserAgent     *string    `json:"user_agent,omitempty"`
	Success       bool       `json:"success"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// LoginHistory handles GET /user-activity-logs/login-history
func (h *Handler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.service.LoginHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list login history")
		return
	}

	out := make([]LoginHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LoginHistoryEntry{
			ID:            e.ID,
			LoginTime:     e.LoginTime,
			LogoutTime:    e.LogoutTime,
			IPAddress:     e.IPAddress,
			UserAgent:     e.UserAgent,
			Success:       e.Success,
			FailureReason: e.FailureReason,
		})
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{"entries": out})
}

// MarkAllRead handles POST /user-activity-logs/mark-all-read
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	affected, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to mark activity logs as read")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]int64{"affectedCount": affected})
}

// userID pulls the authenticated user's ID from the request context
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid user identity")
		return uuid.Nil, false
	}
	return userID, true
}

// writeSuccess writes a success JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}
