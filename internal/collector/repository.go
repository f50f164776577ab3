package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wayfindercollective/funnel-backend/internal/common/db"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

// Schema creates the funnel event store and its indexes
const Schema = `
CREATE TABLE IF NOT EXISTS funnel_events (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	event_id VARCHAR(255) NOT NULL UNIQUE,
	session_id VARCHAR(255) NOT NULL,
	visitor_id VARCHAR(255) NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	question_index INT,
	payload JSONB NOT NULL,
	occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
	received_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_funnel_events_session ON funnel_events(session_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_funnel_events_type ON funnel_events(event_type);
`

type Repository struct {
	db     *db.DB
	logger *logger.Logger
}

func NewRepository(database *db.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     database,
		logger: log,
	}
}

// EnsureSchema creates the event table if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create funnel_events schema: %w", err)
	}
	return nil
}

// InsertEventTx persists one event within the caller's transaction.
// Duplicate event IDs are swallowed so replays stay idempotent.
func (r *Repository) InsertEventTx(ctx context.Context, tx *sql.Tx, event *StoredEvent) (bool, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO funnel_events (event_id, session_id, visitor_id, event_type, question_index, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id, received_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		event.EventID,
		event.SessionID,
		event.VisitorID,
		event.EventType,
		event.QuestionIndex,
		payload,
		event.OccurredAt,
	).Scan(&event.ID, &event.ReceivedAt)

	if err == sql.ErrNoRows {
		// conflict: the event was already stored
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	return true, nil
}

// EventExists reports whether an event ID has already been stored
func (r *Repository) EventExists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM funnel_events WHERE event_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

// GetEventsBySession returns a session's events in the order they occurred
func (r *Repository) GetEventsBySession(ctx context.Context, sessionID string) ([]StoredEvent, error) {
	query := `
		SELECT id, event_id, session_id, visitor_id, event_type, question_index, payload, occurred_at, received_at
		FROM funnel_events
		WHERE session_id = $1
		ORDER BY occurred_at ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// GetRecentEvents returns the newest events, most recent first
func (r *Repository) GetRecentEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	query := `
		SELECT id, event_id, session_id, visitor_id, event_type, question_index, payload, occurred_at, received_at
		FROM funnel_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// GetStats aggregates counts over the stored events
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByType: make(map[string]int64)}

	query := `
		SELECT COUNT(*), COUNT(DISTINCT session_id), MIN(occurred_at), MAX(occurred_at)
		FROM funnel_events`

	var oldest, newest sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalEvents, &stats.TotalSessions, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get event stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestEvent = &oldest.Time
	}
	if newest.Valid {
		stats.NewestEvent = &newest.Time
	}

	rows, err := r.db.QueryContext(ctx, `SELECT event_type, COUNT(*) FROM funnel_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[eventType] = count
	}

	return stats, rows.Err()
}

func (r *Repository) scanEvents(rows *sql.Rows) ([]StoredEvent, error) {
	var events []StoredEvent

	for rows.Next() {
		var event StoredEvent
		var questionIndex sql.NullInt64
		var payload []byte

		err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.SessionID,
			&event.VisitorID,
			&event.EventType,
			&questionIndex,
			&payload,
			&event.OccurredAt,
			&event.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if questionIndex.Valid {
			idx := int(questionIndex.Int64)
			event.QuestionIndex = &idx
		}

		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			r.logger.Warnf("stored event %s has undecodable payload: %v", event.EventID, err)
			event.Payload = make(map[string]interface{})
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}
