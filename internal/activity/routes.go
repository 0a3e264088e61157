package activity

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the user activity log routes with the Chi router.
// All routes require authentication.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware Middleware) {
	r.Route("/user-activity-logs", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.List)
		r.Get("/count", handler.Count)
		r.Get("/login-history", handler.LoginHistory)
		r.Post("/mark-all-read", handler.MarkAllRead)
	})
}
