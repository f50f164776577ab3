package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/common/config"
	"github.com/wayfindercollective/funnel-backend/internal/common/db"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

func setupTestDB(t *testing.T) (*Repository, *db.DB) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DBName:          "funnel_outbox_test",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	log := logger.New("test")
	database, err := db.Connect(cfg, log)
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
		return nil, nil
	}

	if _, err := database.Exec(Schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	if _, err := database.Exec("TRUNCATE outbox_events CASCADE"); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}

	repo := NewRepository(database.DB, log)
	return repo, database
}

func cleanupTestDB(_ *testing.T, database *db.DB) {
	if database == nil {
		return
	}
	database.Exec("TRUNCATE outbox_events CASCADE")
	database.Close()
}

func TestSaveEvent(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	event := &OutboxEvent{
		AggregateID: "session_01J0000000000000000000TEST",
		EventType:   "question_view",
		Topic:       "funnel.events",
		Payload: map[string]interface{}{
			"eventType":     "question_view",
			"questionIndex": float64(2),
		},
	}

	if err := repo.SaveEvent(ctx, tx, event); err != nil {
		t.Fatalf("Failed to save event: %v", err)
	}

	if event.ID == "" {
		t.Error("Expected event ID to be set")
	}
	if event.Status != StatusPending {
		t.Errorf("Expected status pending, got %s", event.Status)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit transaction: %v", err)
	}
}

func TestGetPendingEvents(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tx, _ := database.BeginTx(ctx, nil)
		event := &OutboxEvent{
			AggregateID: "session_01J0000000000000000000TEST",
			EventType:   "question_completed",
			Topic:       "funnel.events",
			Payload: map[string]interface{}{
				"questionIndex": float64(i),
			},
		}
		repo.SaveEvent(ctx, tx, event)
		tx.Commit()
	}

	events, err := repo.GetPendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to get pending events: %v", err)
	}

	if len(events) != 3 {
		t.Errorf("Expected 3 events, got %d", len(events))
	}

	if len(events) >= 2 {
		if events[0].CreatedAt.After(events[1].CreatedAt) {
			t.Error("Events should be ordered by created_at ASC")
		}
	}
}

func TestMarkAsPublished(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	tx, _ := database.BeginTx(ctx, nil)
	event := &OutboxEvent{
		AggregateID: "session_01J0000000000000000000PUB",
		EventType:   "form_submitted",
		Topic:       "funnel.events",
		Payload:     map[string]interface{}{"questionsCompleted": float64(7)},
	}
	repo.SaveEvent(ctx, tx, event)
	tx.Commit()

	if err := repo.MarkAsPublished(ctx, event.ID); err != nil {
		t.Fatalf("Failed to mark as published: %v", err)
	}

	events, _ := repo.GetPendingEvents(ctx, 10)
	for _, e := range events {
		if e.ID == event.ID {
			t.Error("Event should not be in pending list after marking as published")
		}
	}
}

func TestMarkAsFailed(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	tx, _ := database.BeginTx(ctx, nil)
	event := &OutboxEvent{
		AggregateID: "session_01J0000000000000000000FAIL",
		EventType:   "drop_off",
		Topic:       "funnel.events",
		Payload:     map[string]interface{}{"lastQuestionIndex": float64(3)},
	}
	repo.SaveEvent(ctx, tx, event)
	tx.Commit()

	if err := repo.MarkAsFailed(ctx, event.ID, "Kafka broker unavailable"); err != nil {
		t.Fatalf("Failed to mark as failed: %v", err)
	}

	events, _ := repo.GetPendingEvents(ctx, 10)
	for _, e := range events {
		if e.ID == event.ID {
			t.Error("Failed event should not be in pending list")
		}
	}
}

func TestIncrementAttempt(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	ctx := context.Background()

	tx, _ := database.BeginTx(ctx, nil)
	event := &OutboxEvent{
		AggregateID: "session_01J0000000000000000000ATT",
		EventType:   "submission_error",
		Topic:       "funnel.events",
		Payload:     map[string]interface{}{"errorMessage": "webhook returned 500"},
	}
	repo.SaveEvent(ctx, tx, event)
	tx.Commit()

	for i := 1; i <= 3; i++ {
		attempts, err := repo.IncrementAttempt(ctx, event.ID, "delivery timeout")
		if err != nil {
			t.Fatalf("Failed to increment attempt: %v", err)
		}
		if attempts != i {
			t.Errorf("Expected %d attempts, got %d", i, attempts)
		}
	}

	// still pending until explicitly parked
	events, _ := repo.GetPendingEvents(ctx, 10)
	found := false
	for _, e := range events {
		if e.ID == event.ID {
			found = true
			if e.Attempts != 3 {
				t.Errorf("Expected 3 attempts, got %d", e.Attempts)
			}
		}
	}
	if !found {
		t.Error("Event with attempts should remain pending")
	}
}
