// Package activity provides the append-only activity/notification log:
// best-effort recording of user actions, unread tracking, and the
// notification query endpoints.
package activity

import (
	"net/http"
	"strings"
)

// Type is the closed enumeration of recordable activities.
type Type string

const (
	TypeLogin                    Type = "login"
	TypeLogout                   Type = "logout"
	TypePasswordChange           Type = "password_change"
	TypeProfileUpdate            Type = "profile_update"
	TypePermissionChange         Type = "permission_change"
	TypePageVisit                Type = "page_visit"
	TypeFailedAccess             Type = "failed_access"
	TypeAccountStatusChange      Type = "account_status_change"
	TypeUserCreated              Type = "user_created"
	TypeUserDeleted              Type = "user_deleted"
	TypeProfileAssigned          Type = "profile_assigned"
	TypeProfileRemoved           Type = "profile_removed"
	TypePermissionProfileCreated Type = "permission_profile_created"
	TypePermissionProfileUpdated Type = "permission_profile_updated"
	TypePermissionProfileDeleted Type = "permission_profile_deleted"
	TypeEmailChanged             Type = "email_changed"
	TypeUsernameChanged          Type = "username_changed"
	TypeAvatarChanged            Type = "avatar_changed"
)

var validTypes = map[Type]bool{
	TypeLogin:                    true,
	TypeLogout:                   true,
	TypePasswordChange:           true,
	TypeProfileUpdate:            true,
	TypePermissionChange:         true,
	TypePageVisit:                true,
	TypeFailedAccess:             true,
	TypeAccountStatusChange:      true,
	TypeUserCreated:              true,
	TypeUserDeleted:              true,
	TypeProfileAssigned:          true,
	TypeProfileRemoved:           true,
	TypePermissionProfileCreated: true,
	TypePermissionProfileUpdated: true,
	TypePermissionProfileDeleted: true,
	TypeEmailChanged:             true,
	TypeUsernameChanged:          true,
	TypeAvatarChanged:            true,
}

// IsValid reports whether t is one of the known activity types.
func (t Type) IsValid() bool {
	return validTypes[t]
}

// RequestMeta carries the request attributes persisted with an entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// MetaFromRequest extracts client metadata from an HTTP request.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP resolves the originating client IP, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
