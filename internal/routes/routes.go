package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mateit-cloudware/mate-sentinel/internal/auth"
	"github.com/mateit-cloudware/mate-sentinel/internal/handlers"
	"github.com/mateit-cloudware/mate-sentinel/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	outerLimit middleware.OuterRateLimitConfig,
	metricsHandler http.Handler,
) {
	// Public routes, coarse per-IP limit in front of the engine's own checks
	router.With(middleware.RateLimitByIP(outerLimit)).Post("/auth/login", authHandler.Login)

	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Operator API, admin role required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))
		r.Use(auth.RequireRole("admin"))

		r.Route("/api/admin/security", func(r chi.Router) {
			r.Get("/stats", adminHandler.GetStats)
			r.Get("/events", adminHandler.GetEvents)
			r.Post("/events/{id}/handled", adminHandler.MarkEventHandled)
			r.Get("/blocked-ips", adminHandler.GetBlockedIPs)
			r.Post("/blocked-ips", adminHandler.BlockIP)
			r.Delete("/blocked-ips/{ip}", adminHandler.UnblockIP)
			r.Get("/ips/{ip}", adminHandler.GetIPStatus)
		})
	})
}
