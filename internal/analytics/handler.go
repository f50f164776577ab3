package analytics

import (
	"encoding/json"
	"net/http"
)

// Handler exposes the operator dashboard API over the engine
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
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

// GetStats handles GET /api/v1/analytics/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ComputeFunnelStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to aggregate funnel statistics")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Data: report,
	})
}

// GetEvents handles GET /api/v1/analytics/events
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.engine.AllEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load event log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  events,
		"count": len(events),
	})
}

// ClearEvents handles DELETE /api/v1/analytics/events
func (h *Handler) ClearEvents(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to clear event log")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "Event log cleared",
	})
}

// Export handles GET /api/v1/analytics/export?format=json|csv|summary
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		doc, err := h.engine.ExportJSON(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to export analytics")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="funnel-analytics.json"`)
		w.WriteHeader(http.StatusOK)
		w.Write(doc)

	case "csv":
		doc, err := h.engine.ExportCSV(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to export analytics")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="funnel-analytics.csv"`)
		w.WriteHeader(http.StatusOK)
		w.Write(doc)

	case "summary":
		text, err := h.engine.Summary(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to export analytics")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(text))

	default:
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be one of json, csv, summary")
	}
}
