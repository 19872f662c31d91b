package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/notegraphhq/notegraph/internal/api/middleware"
	"github.com/notegraphhq/notegraph/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler       http.HandlerFunc
	ExtractHandler      http.HandlerFunc
	StartReportHandler  http.HandlerFunc
	GetReportHandler    http.HandlerFunc
	CancelReportHandler http.HandlerFunc
	LatestReportHandler http.HandlerFunc
	CreateKeyHandler    http.HandlerFunc
	ListKeysHandler     http.HandlerFunc
	RevokeKeyHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/extract", orNotImplemented(deps.ExtractHandler))

		r.Post("/api/v1/reports", orNotImplemented(deps.StartReportHandler))
		r.Get("/api/v1/reports/{jobID}", orNotImplemented(deps.GetReportHandler))
		r.Delete("/api/v1/reports/{jobID}", orNotImplemented(deps.CancelReportHandler))
		r.Get("/api/v1/conversations/{conversationID}/report", orNotImplemented(deps.LatestReportHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
