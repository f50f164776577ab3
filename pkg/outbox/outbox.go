package outbox

import (
	"time"
)

// Status of an outbox event
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// OutboxEvent is one row of the transactional outbox. It is written in
// the same transaction as the domain change it describes, then published
// to Kafka by a background publisher.
type OutboxEvent struct {
	ID          string                 `json:"id"`
	AggregateID string                 `json:"aggregate_id"`
	EventType   string                 `json:"event_type"`
	Topic       string                 `json:"topic"`
	Payload     map[string]interface{} `json:"payload"`
	Status      string                 `json:"status"`
	Attempts    int                    `json:"attempts"`
	LastError   string                 `json:"last_error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	PublishedAt *time.Time             `json:"published_at,omitempty"`
}

// Schema creates the outbox table and its indexes
const Schema = `
CREATE TABLE IF NOT EXISTS outbox_events (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	aggregate_id VARCHAR(255) NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	topic VARCHAR(100) NOT NULL,
	payload JSONB NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
	published_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_events(status, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_events(aggregate_id);
`
