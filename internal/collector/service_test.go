package collector

import (
	"context"
	"testing"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
	"github.com/wayfindercollective/funnel-backend/internal/common/db"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
	"github.com/wayfindercollective/funnel-backend/pkg/outbox"
)

func setupTestService(t *testing.T) (*Service, *db.DB) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return nil, nil
	}

	log := logger.New("test")
	outboxRepo := outbox.NewRepository(database.DB, log)
	return NewService(repo, outboxRepo, database, log), database
}

func TestIngestStoresEventAndOutboxRecord(t *testing.T) {
	service, database := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()
	idx := 0

	events := []analytics.Event{{
		EventType:     analytics.EventQuestionView,
		EventID:       "question_view_01INGEST",
		Timestamp:     time.Now().UTC(),
		SessionID:     "session_ingest",
		VisitorID:     "visitor_ingest",
		QuestionIndex: &idx,
	}}

	result, err := service.Ingest(ctx, events)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", result.Accepted)
	}

	stored, err := service.GetSessionEvents(ctx, "session_ingest")
	if err != nil {
		t.Fatalf("GetSessionEvents() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("len(stored) = %d, want 1", len(stored))
	}
	if stored[0].EventType != "question_view" {
		t.Errorf("EventType = %q", stored[0].EventType)
	}

	pending, err := service.outboxRepo.GetPendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingEvents() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].AggregateID != "session_ingest" {
		t.Errorf("AggregateID = %q", pending[0].AggregateID)
	}
	if pending[0].Topic != EventsTopic {
		t.Errorf("Topic = %q, want %q", pending[0].Topic, EventsTopic)
	}
}

func TestIngestSkipsDuplicates(t *testing.T) {
	service, database := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()
	event := analytics.Event{
		EventType: analytics.EventSessionStart,
		EventID:   "session_start_01DUP",
		Timestamp: time.Now().UTC(),
		SessionID: "session_dup",
		VisitorID: "visitor_dup",
	}

	// same event delivered twice, e.g. a retried webhook
	result, err := service.Ingest(ctx, []analytics.Event{event, event})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", result.Accepted)
	}
	if result.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", result.Duplicates)
	}

	// duplicate must not be re-published
	pending, _ := service.outboxRepo.GetPendingEvents(ctx, 10)
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d, want 1", len(pending))
	}
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	service, database := setupTestService(t)
	if service == nil {
		return
	}
	defer cleanupTestDB(t, database)

	events := []analytics.Event{
		{EventType: analytics.EventQuestionView, EventID: "", SessionID: "session_x", VisitorID: "v"},
		{EventType: "", EventID: "question_view_01X", SessionID: "session_x", VisitorID: "v"},
	}

	result, err := service.Ingest(context.Background(), events)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", result.Rejected)
	}
	if result.Accepted != 0 {
		t.Errorf("Accepted = %d, want 0", result.Accepted)
	}
}
