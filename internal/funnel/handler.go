package funnel

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
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

// writeServiceError maps controller errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "No such funnel session")
	case errors.Is(err, ErrSessionSubmitted):
		writeError(w, http.StatusConflict, "already_submitted", "This session has already been submitted")
	case errors.Is(err, ErrSubmitInFlight):
		writeError(w, http.StatusConflict, "submit_in_flight", "A submission is already in progress")
	case errors.Is(err, ErrFieldMismatch):
		writeError(w, http.StatusBadRequest, "field_mismatch", err.Error())
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
	}
}

// GetQuestions handles GET /api/v1/funnel/questions
func (h *Handler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{
		Data: h.service.Questions(),
	})
}

// StartSession handles POST /api/v1/funnel/sessions
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}

	view, err := h.service.Start(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SuccessResponse{Data: view})
}

// GetSession handles GET /api/v1/funnel/sessions/{session_id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: view})
}

type answerRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// AnswerQuestion handles POST /api/v1/funnel/sessions/{session_id}/answer
func (h *Handler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "field is required")
		return
	}

	view, err := h.service.Answer(r.Context(), r.PathValue("session_id"), req.Field, req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: view})
}

// Advance handles POST /api/v1/funnel/sessions/{session_id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Advance(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: view})
}

// Back handles POST /api/v1/funnel/sessions/{session_id}/back
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Back(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: view})
}

// Submit handles POST /api/v1/funnel/sessions/{session_id}/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Submit(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: view})
}

type signalRequest struct {
	Type string `json:"type"`
}

// Signal handles POST /api/v1/funnel/sessions/{session_id}/signal
func (h *Handler) Signal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}

	if err := h.service.Signal(r.Context(), r.PathValue("session_id"), req.Type); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_signal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "Signal recorded"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "funnel",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck handles GET /ready
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}
