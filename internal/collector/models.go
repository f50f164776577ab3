package collector

import (
	"time"
)

// StoredEvent is one durably persisted funnel event. The event_id from
// the capture side is unique, so replayed deliveries are deduplicated on
// insert.
type StoredEvent struct {
	ID            string                 `json:"id"`
	EventID       string                 `json:"event_id"`
	SessionID     string                 `json:"session_id"`
	VisitorID     string                 `json:"visitor_id"`
	EventType     string                 `json:"event_type"`
	QuestionIndex *int                   `json:"question_index,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	OccurredAt    time.Time              `json:"occurred_at"`
	ReceivedAt    time.Time              `json:"received_at"`
}

// IngestResult reports what happened to a delivered batch
type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Stats is the collector's stored-event summary
type Stats struct {
	TotalEvents   int64            `json:"total_events"`
	TotalSessions int64            `json:"total_sessions"`
	ByType        map[string]int64 `json:"by_type"`
	OldestEvent   *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent   *time.Time       `json:"newest_event,omitempty"`
}

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse is the standard success payload
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
