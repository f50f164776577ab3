package funnel

import (
	"net/http"
)

func SetupRoutes(mux *http.ServeMux, handler *Handler) {
	// Health checks
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /ready", handler.ReadinessCheck)

	// Funnel API v1
	mux.HandleFunc("GET /api/v1/funnel/questions", handler.GetQuestions)
	mux.HandleFunc("POST /api/v1/funnel/sessions", handler.StartSession)
	mux.HandleFunc("GET /api/v1/funnel/sessions/{session_id}", handler.GetSession)
	mux.HandleFunc("POST /api/v1/funnel/sessions/{session_id}/answer", handler.AnswerQuestion)
	mux.HandleFunc("POST /api/v1/funnel/sessions/{session_id}/advance", handler.Advance)
	mux.HandleFunc("POST /api/v1/funnel/sessions/{session_id}/back", handler.Back)
	mux.HandleFunc("POST /api/v1/funnel/sessions/{session_id}/submit", handler.Submit)
	mux.HandleFunc("POST /api/v1/funnel/sessions/{session_id}/signal", handler.Signal)
}
