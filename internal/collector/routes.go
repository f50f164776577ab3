package collector

import (
	"net/http"

	"github.com/wayfindercollective/funnel-backend/internal/common/middleware"
)

// SetupRoutes mounts the collector API. Ingestion is open to the capture
// side; everything that reads stored data is operator-only.
func SetupRoutes(mux *http.ServeMux, handler *Handler, jwtSecret string) {
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /ready", handler.ReadinessCheck)

	mux.HandleFunc("POST /api/v1/collect", handler.Collect)

	protected := middleware.JWTAuth(jwtSecret)
	mux.Handle("GET /api/v1/collect/stats", protected(http.HandlerFunc(handler.GetStats)))
	mux.Handle("GET /api/v1/collect/events", protected(http.HandlerFunc(handler.GetRecentEvents)))
	mux.Handle("GET /api/v1/collect/sessions/{session_id}/events", protected(http.HandlerFunc(handler.GetSessionEvents)))
}
