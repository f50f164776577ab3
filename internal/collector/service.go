package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
	"github.com/wayfindercollective/funnel-backend/internal/common/db"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
	"github.com/wayfindercollective/funnel-backend/pkg/outbox"
)

// EventsTopic is the Kafka topic downstream consumers read funnel events from
const EventsTopic = "funnel.events"

type Service struct {
	repo       *Repository
	outboxRepo *outbox.Repository
	db         *db.DB
	logger     *logger.Logger
}

func NewService(
	repo *Repository,
	outboxRepo *outbox.Repository,
	database *db.DB,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		outboxRepo: outboxRepo,
		db:         database,
		logger:     log,
	}
}

// Ingest stores a batch of delivered events. Each event is written together
// with its outbox record in one transaction, so an event is only ever
// published to Kafka if it was durably stored. Events that were already
// stored count as duplicates and are not re-published.
func (s *Service) Ingest(ctx context.Context, events []analytics.Event) (*IngestResult, error) {
	result := &IngestResult{}

	for i := range events {
		event := &events[i]

		if event.EventID == "" || event.SessionID == "" || event.EventType == "" {
			s.logger.Warnf("rejecting malformed event (id=%q session=%q type=%q)",
				event.EventID, event.SessionID, event.EventType)
			result.Rejected++
			continue
		}

		inserted, err := s.storeEvent(ctx, event)
		if err != nil {
			return result, fmt.Errorf("failed to store event %s: %w", event.EventID, err)
		}

		if inserted {
			result.Accepted++
		} else {
			result.Duplicates++
		}
	}

	if result.Accepted > 0 {
		s.logger.Infof("ingested %d events (%d duplicates, %d rejected)",
			result.Accepted, result.Duplicates, result.Rejected)
	}

	return result, nil
}

func (s *Service) storeEvent(ctx context.Context, event *analytics.Event) (bool, error) {
	stored := toStoredEvent(event)

	var inserted bool
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = s.repo.InsertEventTx(ctx, tx, stored)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		outboxEvent := &outbox.OutboxEvent{
			AggregateID: stored.SessionID,
			EventType:   stored.EventType,
			Topic:       EventsTopic,
			Payload:     stored.Payload,
		}
		return s.outboxRepo.SaveEvent(ctx, tx, outboxEvent)
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// GetStats returns the stored-event summary
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	return s.repo.GetStats(ctx)
}

// GetSessionEvents returns one session's events in occurrence order
func (s *Service) GetSessionEvents(ctx context.Context, sessionID string) ([]StoredEvent, error) {
	return s.repo.GetEventsBySession(ctx, sessionID)
}

// GetRecentEvents returns the newest stored events
func (s *Service) GetRecentEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.GetRecentEvents(ctx, limit)
}

// jsonRoundTrip flattens the typed event into the generic payload shape
// stored in the JSONB column.
func jsonRoundTrip(event *analytics.Event) (map[string]interface{}, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func toStoredEvent(event *analytics.Event) *StoredEvent {
	payload := make(map[string]interface{})
	raw, err := jsonRoundTrip(event)
	if err == nil {
		payload = raw
	}

	return &StoredEvent{
		EventID:       event.EventID,
		SessionID:     event.SessionID,
		VisitorID:     event.VisitorID,
		EventType:     string(event.EventType),
		QuestionIndex: event.QuestionIndex,
		Payload:       payload,
		OccurredAt:    event.Timestamp,
	}
}
