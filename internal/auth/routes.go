package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the authentication routes with the Chi router.
// Login is public; logout and me require a valid access token.
func RegisterRoutes(r chi.Router, handler *AuthHandler, authMiddleware Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", handler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", handler.Logout)
			r.Get("/me", handler.GetMe)
		})
	})
}
