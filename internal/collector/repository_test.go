package collector

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/common/config"
	"github.com/wayfindercollective/funnel-backend/internal/common/db"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
	"github.com/wayfindercollective/funnel-backend/pkg/outbox"
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
		DBName:          "funnel_collector_test",
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

	for _, schema := range []string{Schema, outbox.Schema} {
		if _, err := database.Exec(schema); err != nil {
			t.Fatalf("Failed to create schema: %v", err)
		}
	}
	for _, table := range []string{"funnel_events", "outbox_events"} {
		if _, err := database.Exec("TRUNCATE " + table + " CASCADE"); err != nil {
			t.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}

	repo := NewRepository(database, log)
	return repo, database
}

func cleanupTestDB(_ *testing.T, database *db.DB) {
	if database == nil {
		return
	}
	database.Exec("TRUNCATE funnel_events CASCADE")
	database.Exec("TRUNCATE outbox_events CASCADE")
	database.Close()
}

func insertTestEvent(t *testing.T, repo *Repository, database *db.DB, event *StoredEvent) bool {
	t.Helper()

	ctx := context.Background()
	var inserted bool
	err := database.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = repo.InsertEventTx(ctx, tx, event)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}
	return inserted
}

func TestInsertEventDeduplicates(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	idx := 1
	event := &StoredEvent{
		EventID:       "question_view_01DEDUPE",
		SessionID:     "session_dedupe",
		VisitorID:     "visitor_dedupe",
		EventType:     "question_view",
		QuestionIndex: &idx,
		Payload:       map[string]interface{}{"questionIndex": float64(1)},
		OccurredAt:    time.Now().UTC(),
	}

	if !insertTestEvent(t, repo, database, event) {
		t.Fatal("First insert should report inserted")
	}
	if event.ID == "" {
		t.Error("Expected stored event ID to be set")
	}

	dup := *event
	dup.ID = ""
	if insertTestEvent(t, repo, database, &dup) {
		t.Error("Second insert with same event_id should report duplicate")
	}

	exists, err := repo.EventExists(context.Background(), event.EventID)
	if err != nil {
		t.Fatalf("EventExists() error = %v", err)
	}
	if !exists {
		t.Error("EventExists() = false, want true")
	}
}

func TestGetEventsBySessionOrder(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		idx := i
		event := &StoredEvent{
			EventID:       "question_view_order_" + string(rune('a'+i)),
			SessionID:     "session_order",
			VisitorID:     "visitor_order",
			EventType:     "question_view",
			QuestionIndex: &idx,
			Payload:       map[string]interface{}{"questionIndex": float64(i)},
			// insert newest first so ordering comes from occurred_at
			OccurredAt: base.Add(time.Duration(2-i) * time.Second),
		}
		insertTestEvent(t, repo, database, event)
	}

	events, err := repo.GetEventsBySession(context.Background(), "session_order")
	if err != nil {
		t.Fatalf("GetEventsBySession() error = %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].OccurredAt.Before(events[i-1].OccurredAt) {
			t.Error("Events should be ordered by occurred_at ASC")
		}
	}
}

func TestGetStats(t *testing.T) {
	repo, database := setupTestDB(t)
	if repo == nil {
		return
	}
	defer cleanupTestDB(t, database)

	now := time.Now().UTC()
	fixtures := []struct {
		eventID   string
		sessionID string
		eventType string
	}{
		{"session_start_s1", "session_1", "session_start"},
		{"question_view_s1", "session_1", "question_view"},
		{"session_start_s2", "session_2", "session_start"},
	}

	for _, f := range fixtures {
		insertTestEvent(t, repo, database, &StoredEvent{
			EventID:    f.eventID,
			SessionID:  f.sessionID,
			VisitorID:  "visitor_x",
			EventType:  f.eventType,
			Payload:    map[string]interface{}{},
			OccurredAt: now,
		})
	}

	stats, err := repo.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}

	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", stats.TotalEvents)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", stats.TotalSessions)
	}
	if stats.ByType["session_start"] != 2 {
		t.Errorf("ByType[session_start] = %d, want 2", stats.ByType["session_start"])
	}
	if stats.OldestEvent == nil || stats.NewestEvent == nil {
		t.Error("Expected oldest and newest event timestamps")
	}
}
