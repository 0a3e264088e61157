package aimanager

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the AI manager routes with the Chi router.
// The prompt endpoint requires authentication; admission against the
// generation quota happens inside the handler so rate limit headers ride
// on the streaming response.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware Middleware) {
	r.Route("/ai-manager", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/prompt", handler.Prompt)
	})
}
