package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
	"github.com/wayfindercollective/funnel-backend/internal/common/kvstore"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

type webhookRecorder struct {
	mu     sync.Mutex
	status int
	bodies [][]byte
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		status := r.status
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (r *webhookRecorder) setStatus(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *webhookRecorder) requests() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.bodies...)
}

type testHarness struct {
	service  Service
	engine   *analytics.Engine
	store    kvstore.Store
	recorder *webhookRecorder
	server   *httptest.Server
}

func newTestHarness(t *testing.T, cfg ServiceConfig) *testHarness {
	t.Helper()

	recorder := &webhookRecorder{status: http.StatusOK}
	server := httptest.NewServer(recorder.handler())
	t.Cleanup(server.Close)

	store := kvstore.NewMemoryStore()
	log := logger.New("funnel-test")
	engine := analytics.NewEngine(analytics.Config{Labels: Labels(DefaultQuestions())}, store, nil, nil, log)
	service := NewService(cfg, store, engine, NewWebhookClient(server.URL), log)

	return &testHarness{
		service:  service,
		engine:   engine,
		store:    store,
		recorder: recorder,
		server:   server,
	}
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// answerAll walks the session through every question up to but not past
// the terminal step.
func answerAll(t *testing.T, h *testHarness, sessionID string) {
	t.Helper()
	ctx := context.Background()

	answers := []struct {
		field string
		value interface{}
	}{
		{"lifeArea", "I want to improve my career"},
		{"priority", 8},
		{"investmentReadiness", "I'm ready to invest in myself today"},
		{"income", "$5-10k Per Month"},
		{"email", "ada@example.com"},
		{"phone", map[string]string{"country": "US", "phone": "5551234567"}},
		{"name", map[string]string{"firstName": "Ada", "lastName": "Lovelace"}},
	}

	for i, a := range answers {
		if _, err := h.service.Answer(ctx, sessionID, a.field, rawJSON(t, a.value)); err != nil {
			t.Fatalf("Answer(%s) error = %v", a.field, err)
		}
		if i < len(answers)-1 {
			if _, err := h.service.Advance(ctx, sessionID); err != nil {
				t.Fatalf("Advance() after %s error = %v", a.field, err)
			}
		}
	}
}

func TestStartNewSession(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, err := h.service.Start(ctx, StartRequest{VisitorID: "v1", URL: "https://example.com/funnel"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if view.SessionID == "" {
		t.Error("SessionID is empty, want generated id")
	}
	if view.Status != StatusAnswering {
		t.Errorf("Status = %q, want %q", view.Status, StatusAnswering)
	}
	if view.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0", view.CurrentStep)
	}
	if view.Question == nil || view.Question.FieldName != "lifeArea" {
		t.Errorf("Question = %+v, want lifeArea", view.Question)
	}
	if view.Resumed {
		t.Error("Resumed = true for a fresh session")
	}

	events, err := h.engine.AllEvents(ctx)
	if err != nil {
		t.Fatalf("AllEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].EventType != analytics.EventSessionStart || events[1].EventType != analytics.EventQuestionView {
		t.Errorf("events = %v, want [session_start question_view]", eventTypes(events))
	}
}

func TestAnswerFieldMismatch(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	_, err := h.service.Answer(ctx, view.SessionID, "email", rawJSON(t, "a@b.com"))
	if !errors.Is(err, ErrFieldMismatch) {
		t.Errorf("Answer() with wrong field error = %v, want ErrFieldMismatch", err)
	}
}

func TestAdvanceRefusesInvalidAnswer(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})

	// no answer at all
	if _, err := h.service.Advance(ctx, view.SessionID); !errors.Is(err, ErrValidation) {
		t.Errorf("Advance() without answer error = %v, want ErrValidation", err)
	}

	// whitespace answer
	h.service.Answer(ctx, view.SessionID, "lifeArea", rawJSON(t, "   "))
	if _, err := h.service.Advance(ctx, view.SessionID); !errors.Is(err, ErrValidation) {
		t.Errorf("Advance() with blank answer error = %v, want ErrValidation", err)
	}

	// session stays on the same step
	current, _ := h.service.Get(ctx, view.SessionID)
	if current.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0 after refused advances", current.CurrentStep)
	}
}

func TestFullWalkthroughSubmits(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	answerAll(t, h, view.SessionID)

	final, err := h.service.Advance(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("final Advance() error = %v", err)
	}
	if final.Status != StatusSubmitted {
		t.Fatalf("Status = %q, want %q", final.Status, StatusSubmitted)
	}
	if final.SubmittedAt == nil {
		t.Error("SubmittedAt = nil after submission")
	}

	reqs := h.recorder.requests()
	if len(reqs) != 1 {
		t.Fatalf("webhook requests = %d, want 1", len(reqs))
	}
	var payload SubmissionPayload
	if err := json.Unmarshal(reqs[0], &payload); err != nil {
		t.Fatalf("webhook payload not JSON: %v", err)
	}
	if payload.Email != "ada@example.com" {
		t.Errorf("payload.Email = %q", payload.Email)
	}
	if payload.FullPhone != "+15551234567" {
		t.Errorf("payload.FullPhone = %q, want +15551234567", payload.FullPhone)
	}
	if payload.FullName != "Ada Lovelace" {
		t.Errorf("payload.FullName = %q, want Ada Lovelace", payload.FullName)
	}

	// draft is gone once submitted
	if _, err := h.store.Get(ctx, "funnel:draft:v1"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Errorf("draft lookup after submit error = %v, want ErrNotFound", err)
	}

	// the terminal state rejects further mutation
	if _, err := h.service.Submit(ctx, view.SessionID); !errors.Is(err, ErrSessionSubmitted) {
		t.Errorf("Submit() after submit error = %v, want ErrSessionSubmitted", err)
	}
	if _, err := h.service.Answer(ctx, view.SessionID, "name", rawJSON(t, map[string]string{})); !errors.Is(err, ErrSessionSubmitted) {
		t.Errorf("Answer() after submit error = %v, want ErrSessionSubmitted", err)
	}

	events, _ := h.engine.AllEvents(ctx)
	submitted := 0
	for _, ev := range events {
		if ev.EventType == analytics.EventFormSubmitted {
			submitted++
		}
	}
	if submitted != 1 {
		t.Errorf("form_submitted events = %d, want 1", submitted)
	}
}

func TestSubmitFailureIsRetryableWithIdenticalPayload(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	answerAll(t, h, view.SessionID)

	h.recorder.setStatus(http.StatusNotFound)
	failed, err := h.service.Advance(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("Status = %q, want %q", failed.Status, StatusFailed)
	}
	if failed.Error == nil || failed.Error.Class != ErrorEndpointNotActivated {
		t.Fatalf("Error = %+v, want class endpoint_not_activated", failed.Error)
	}
	if !failed.Error.Retryable {
		t.Error("Error.Retryable = false, want true")
	}

	events, _ := h.engine.AllEvents(ctx)
	if !hasEvent(events, analytics.EventSubmissionError) {
		t.Error("submission_error event not recorded")
	}

	h.recorder.setStatus(http.StatusOK)
	retried, err := h.service.Submit(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("retry Submit() error = %v", err)
	}
	if retried.Status != StatusSubmitted {
		t.Errorf("Status after retry = %q, want %q", retried.Status, StatusSubmitted)
	}

	reqs := h.recorder.requests()
	if len(reqs) != 2 {
		t.Fatalf("webhook requests = %d, want 2", len(reqs))
	}
	if string(reqs[0]) != string(reqs[1]) {
		t.Errorf("retry payload differs from original:\nfirst  = %s\nsecond = %s", reqs[0], reqs[1])
	}
}

func TestBlockedSubmissionIsNotRetryable(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	answerAll(t, h, view.SessionID)

	h.recorder.setStatus(http.StatusForbidden)
	failed, _ := h.service.Advance(ctx, view.SessionID)
	if failed.Error == nil || failed.Error.Class != ErrorBlocked {
		t.Fatalf("Error = %+v, want class blocked", failed.Error)
	}
	if failed.Error.Retryable {
		t.Error("Error.Retryable = true for blocked submission")
	}
}

func TestDraftResume(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	first, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	h.service.Answer(ctx, first.SessionID, "lifeArea", rawJSON(t, "my health"))
	h.service.Advance(ctx, first.SessionID)
	h.service.Answer(ctx, first.SessionID, "priority", rawJSON(t, 9))
	h.service.Advance(ctx, first.SessionID)

	// same visitor comes back in a new session
	second, err := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !second.Resumed {
		t.Error("Resumed = false, want true")
	}
	if second.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, want 2", second.CurrentStep)
	}
	if got := second.Answers["lifeArea"].Text; got != "my health" {
		t.Errorf("restored lifeArea = %q, want %q", got, "my health")
	}
	if got := second.Answers["priority"].Scale; got != 9 {
		t.Errorf("restored priority = %d, want 9", got)
	}
}

func TestAutoAdvanceSingleSelect(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{AutoAdvanceDelay: 20 * time.Millisecond})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	h.service.Answer(ctx, view.SessionID, "lifeArea", rawJSON(t, "career"))
	h.service.Advance(ctx, view.SessionID)
	h.service.Answer(ctx, view.SessionID, "priority", rawJSON(t, 8))
	h.service.Advance(ctx, view.SessionID)

	// selecting a choice advances on its own
	h.service.Answer(ctx, view.SessionID, "investmentReadiness", rawJSON(t, "I'd prefer to get free resources first"))

	deadline := time.Now().Add(time.Second)
	for {
		current, _ := h.service.Get(ctx, view.SessionID)
		if current.CurrentStep == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session did not auto-advance, still on step %d", current.CurrentStep)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// allow any stale timer to fire, then confirm a single completion
	time.Sleep(50 * time.Millisecond)
	events, _ := h.engine.AllEvents(ctx)
	completions := 0
	for _, ev := range events {
		if ev.EventType == analytics.EventQuestionCompleted && ev.QuestionIndex != nil && *ev.QuestionIndex == 2 {
			completions++
		}
	}
	if completions != 1 {
		t.Errorf("question_completed events for step 2 = %d, want 1", completions)
	}
}

func TestMultiSelectWaitsForExplicitAdvance(t *testing.T) {
	questions := []Question{
		{
			ID: 1, Type: TypeMultipleChoice, MultiSelect: true, Required: true,
			Prompt:    "Which areas do you want to work on?",
			Options:   []string{"Career", "Health", "Relationships"},
			FieldName: "focusAreas", Label: "Focus Areas",
		},
		{
			ID: 2, Type: TypeEmail, Required: true,
			Prompt:    "Where should we send your plan?",
			FieldName: "email", Label: "Email Address",
		},
	}
	h := newTestHarness(t, ServiceConfig{Questions: questions, AutoAdvanceDelay: 20 * time.Millisecond})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	if _, err := h.service.Answer(ctx, view.SessionID, "focusAreas", rawJSON(t, []string{"Career", "Health"})); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	// pick-many steps stay put until the client advances
	time.Sleep(80 * time.Millisecond)
	current, _ := h.service.Get(ctx, view.SessionID)
	if current.CurrentStep != 0 {
		t.Fatalf("CurrentStep = %d after multi-select answer, want 0", current.CurrentStep)
	}

	next, err := h.service.Advance(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if next.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d after explicit advance, want 1", next.CurrentStep)
	}
	if got := next.Answers["focusAreas"].Choices; len(got) != 2 {
		t.Errorf("focusAreas choices = %v, want 2 selections", got)
	}
}

func TestSignalUnknownKind(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	if err := h.service.Signal(ctx, view.SessionID, "sneeze"); err == nil {
		t.Error("Signal() with unknown kind error = nil, want error")
	}
	if err := h.service.Signal(ctx, "nope", "activity"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Signal() for unknown session error = %v, want ErrSessionNotFound", err)
	}
}

func TestSignalUnloadRecordsDropOff(t *testing.T) {
	h := newTestHarness(t, ServiceConfig{})
	ctx := context.Background()

	view, _ := h.service.Start(ctx, StartRequest{VisitorID: "v1"})
	h.service.Answer(ctx, view.SessionID, "lifeArea", rawJSON(t, "career"))
	h.service.Advance(ctx, view.SessionID)

	if err := h.service.Signal(ctx, view.SessionID, "unload"); err != nil {
		t.Fatalf("Signal(unload) error = %v", err)
	}

	events, _ := h.engine.AllEvents(ctx)
	if !hasEvent(events, analytics.EventDropOff) {
		t.Fatal("drop_off not recorded on unload")
	}
	for _, ev := range events {
		if ev.EventType == analytics.EventDropOff {
			if ev.LastQuestionIndex == nil || *ev.LastQuestionIndex != 1 {
				t.Errorf("LastQuestionIndex = %v, want 1", ev.LastQuestionIndex)
			}
			if len(ev.AnsweredFields) != 1 || ev.AnsweredFields[0] != "lifeArea" {
				t.Errorf("AnsweredFields = %v, want [lifeArea]", ev.AnsweredFields)
			}
		}
	}
}

func eventTypes(events []analytics.Event) []analytics.EventType {
	types := make([]analytics.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.EventType
	}
	return types
}

func hasEvent(events []analytics.Event, typ analytics.EventType) bool {
	for _, ev := range events {
		if ev.EventType == typ {
			return true
		}
	}
	return false
}
