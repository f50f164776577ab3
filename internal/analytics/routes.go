package analytics

import (
	"net/http"

	"github.com/wayfindercollective/funnel-backend/internal/common/middleware"
)

// RegisterRoutes mounts the dashboard API. Every route is operator-only.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, jwtSecret string) {
	protected := middleware.JWTAuth(jwtSecret)

	mux.Handle("GET /api/v1/analytics/stats", protected(http.HandlerFunc(h.GetStats)))
	mux.Handle("GET /api/v1/analytics/events", protected(http.HandlerFunc(h.GetEvents)))
	mux.Handle("DELETE /api/v1/analytics/events", protected(http.HandlerFunc(h.ClearEvents)))
	mux.Handle("GET /api/v1/analytics/export", protected(http.HandlerFunc(h.Export)))
}
