package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

// Repository persists outbox events
type Repository struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewRepository(db *sql.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// SaveEvent inserts the event inside the caller's transaction, so the
// event and the domain change it describes commit or roll back together.
func (r *Repository) SaveEvent(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (aggregate_id, event_type, topic, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, attempts, created_at`

	err = tx.QueryRowContext(ctx, query, event.AggregateID, event.EventType, event.Topic, payload).
		Scan(&event.ID, &event.Status, &event.Attempts, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// GetPendingEvents returns unpublished events, oldest first
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, topic, payload, status, attempts, COALESCE(last_error, ''), created_at, published_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var event OutboxEvent
		var payload []byte
		if err := rows.Scan(
			&event.ID, &event.AggregateID, &event.EventType, &event.Topic,
			&payload, &event.Status, &event.Attempts, &event.LastError,
			&event.CreatedAt, &event.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			r.logger.Warnf("outbox event %s has undecodable payload: %v", event.ID, err)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// MarkAsPublished finalizes a delivered event
func (r *Repository) MarkAsPublished(ctx context.Context, eventID string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, published_at = CURRENT_TIMESTAMP
		WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, StatusPublished, eventID); err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

// MarkAsFailed parks an event that exhausted its delivery attempts
func (r *Repository) MarkAsFailed(ctx context.Context, eventID, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, last_error = $2
		WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, StatusFailed, lastError, eventID); err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// IncrementAttempt records a failed delivery attempt and returns the new
// attempt count.
func (r *Repository) IncrementAttempt(ctx context.Context, eventID, lastError string) (int, error) {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $1
		WHERE id = $2
		RETURNING attempts`

	var attempts int
	if err := r.db.QueryRowContext(ctx, query, lastError, eventID).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to increment attempt: %w", err)
	}
	return attempts, nil
}
