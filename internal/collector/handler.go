package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handler exposes the event ingestion API
type Handler struct {
	service *Service
	logger  *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// decodeEvents accepts either a single event object or an array of events
func decodeEvents(body []byte) ([]analytics.Event, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if trimmed[0] == '[' {
		var events []analytics.Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("invalid event batch: %w", err)
		}
		return events, nil
	}

	var event analytics.Event
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return []analytics.Event{event}, nil
}

// Collect handles POST /api/v1/collect
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.Ingest(r.Context(), events)
	if err != nil {
		h.logger.Errorf("ingest failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store events")
		return
	}

	writeJSON(w, http.StatusAccepted, SuccessResponse{
		Message: "Events accepted",
		Data:    result,
	})
}

// GetStats handles GET /api/v1/collect/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: stats})
}

// GetSessionEvents handles GET /api/v1/collect/sessions/{session_id}/events
func (h *Handler) GetSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	events, err := h.service.GetSessionEvents(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load session events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  events,
		"count": len(events),
	})
}

// GetRecentEvents handles GET /api/v1/collect/events?limit=N
func (h *Handler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = n
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  events,
		"count": len(events),
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "collector",
	})
}

// ReadinessCheck handles GET /ready
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.db.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "Database unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
