/**
 * @description
 * This file sets up the HTTP router for the service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * the authentication and role middleware per route group.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/volapay/remit-service/internal/app"
	"github.com/volapay/remit-service/internal/domain"
)

// Routes creates and returns the service router.
func Routes(h *Handlers, compliance *ComplianceHandlers, webhook *WebhookHandler, audit *app.AuditLogger, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Webhook endpoint: authenticated by signature, not by session token.
	r.Method(http.MethodPost, "/webhooks/stripe", webhook)

	// Client endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret, audit))
		r.Use(RequireRole(audit, domain.RoleClient, domain.RoleAdmin))

		r.Post("/transfers", h.CreateTransferHandler)
		r.Get("/transfers/{id}", h.GetTransferHandler)
		r.Post("/transfers/{id}/cancel", h.CancelTransferHandler)

		r.Post("/subscriptions", h.CreateSubscriptionHandler)
		r.Post("/subscriptions/{id}/pause", h.PauseSubscriptionHandler)
		r.Post("/subscriptions/{id}/resume", h.ResumeSubscriptionHandler)
		r.Post("/subscriptions/{id}/cancel", h.CancelSubscriptionHandler)

		r.Get("/notifications", h.ListNotificationsHandler)
		r.Post("/notifications/{id}/read", h.MarkNotificationReadHandler)
	})

	// Operations-console endpoints for the Madagascar team.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret, audit))
		r.Use(RequireRole(audit, domain.RoleMGTeam, domain.RoleAdmin))

		r.Post("/transfers/{id}/confirm", h.ConfirmTransferHandler)
		r.Post("/transfers/{id}/automate", h.AutomateTransferHandler)
	})

	// Admin endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret, audit))
		r.Use(RequireRole(audit, domain.RoleAdmin))

		r.Get("/admin/reliability", compliance.ReliabilityHandler)
		r.Get("/admin/compliance/report", compliance.ComplianceReportHandler)
		r.Post("/admin/compliance/export", compliance.ExportAuditLogsHandler)
	})

	return r
}
