package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/brandlens/brandlens/internal/api/middleware"
	"github.com/brandlens/brandlens/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateScanHandler  http.HandlerFunc
	ListScansHandler   http.HandlerFunc
	GetScanHandler     http.HandlerFunc
	StartScanHandler   http.HandlerFunc
	ScanActionHandler  http.HandlerFunc
	ScanMetricsHandler http.HandlerFunc
	ListQuestions      http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
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

		r.Post("/api/v1/scans", orNotImplemented(deps.CreateScanHandler))
		r.Get("/api/v1/scans", orNotImplemented(deps.ListScansHandler))
		r.Get("/api/v1/scans/{scanID}", orNotImplemented(deps.GetScanHandler))
		r.Post("/api/v1/scans/{scanID}/start", orNotImplemented(deps.StartScanHandler))
		r.Post("/api/v1/scans/{scanID}/action", orNotImplemented(deps.ScanActionHandler))
		r.Get("/api/v1/scans/{scanID}/metrics", orNotImplemented(deps.ScanMetricsHandler))
		r.Get("/api/v1/scans/{scanID}/questions", orNotImplemented(deps.ListQuestions))

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
