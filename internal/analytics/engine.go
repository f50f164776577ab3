package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wayfindercollective/funnel-backend/internal/common/kvstore"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

const (
	// eventLogKey is the KV list holding the append-only event log
	eventLogKey = "funnel:analytics:events"

	// maxErrorMessageLen bounds submission_error messages before storage
	maxErrorMessageLen = 200
)

// Config tunes the analytics engine
type Config struct {
	// Labels are the human names of the funnel steps, in order. Their
	// count defines the funnel length and the terminal step index.
	Labels []string

	MaxStoredEvents     int64
	HiddenThreshold     time.Duration
	InactivityThreshold time.Duration
	SessionIdleExpiry   time.Duration
	RecentDropOffs      int
}

func (c *Config) setDefaults() {
	if c.MaxStoredEvents == 0 {
		c.MaxStoredEvents = 10000
	}
	if c.HiddenThreshold == 0 {
		c.HiddenThreshold = 5 * time.Second
	}
	if c.InactivityThreshold == 0 {
		c.InactivityThreshold = 30 * time.Second
	}
	if c.SessionIdleExpiry == 0 {
		c.SessionIdleExpiry = 2 * time.Hour
	}
	if c.RecentDropOffs == 0 {
		c.RecentDropOffs = 10
	}
}

// sessionState is the per-session tracking state. It exists only for the
// life of the session in this process; everything durable goes through the
// event log.
type sessionState struct {
	visitorID string
	startTime time.Time

	lastQuestionIndex int
	firstView         map[int]time.Time
	latestView        map[int]time.Time

	// one-shot latches
	started           bool
	submissionTracked bool
	dropOffTracked    bool

	// last known answers, for drop_off field accounting
	answers map[string]interface{}

	lastActivity time.Time
	hiddenSince  *time.Time
}

// Engine captures funnel events, appends them durably to the local log,
// forwards them best-effort to the collector, and aggregates the log into
// funnel statistics on demand.
type Engine struct {
	cfg       Config
	store     kvstore.Store
	forwarder *Forwarder
	clock     Clock
	logger    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewEngine creates an engine. The forwarder may be nil when remote
// delivery is disabled.
func NewEngine(cfg Config, store kvstore.Store, forwarder *Forwarder, clock Clock, log *logger.Logger) *Engine {
	cfg.setDefaults()
	if clock == nil {
		clock = SystemClock()
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		forwarder: forwarder,
		clock:     clock,
		logger:    log,
		sessions:  make(map[string]*sessionState),
	}
}

// terminalIndex is the zero-based index of the last funnel step
func (e *Engine) terminalIndex() int {
	if len(e.cfg.Labels) == 0 {
		return 0
	}
	return len(e.cfg.Labels) - 1
}

func (e *Engine) label(idx int) string {
	if idx >= 0 && idx < len(e.cfg.Labels) {
		return e.cfg.Labels[idx]
	}
	return fmt.Sprintf("Question %d", idx+1)
}

func (e *Engine) progressPercent(idx int) int {
	total := len(e.cfg.Labels)
	if total == 0 {
		return 0
	}
	return int(float64(idx+1)/float64(total)*100 + 0.5)
}

// state returns the tracking state for the session, creating it on first
// touch so capture calls never depend on StartSession having run.
func (e *Engine) state(sessionID string) *sessionState {
	st, ok := e.sessions[sessionID]
	if !ok {
		st = &sessionState{
			startTime:         e.clock.Now(),
			lastQuestionIndex: -1,
			firstView:         make(map[int]time.Time),
			latestView:        make(map[int]time.Time),
			answers:           make(map[string]interface{}),
			lastActivity:      e.clock.Now(),
		}
		e.sessions[sessionID] = st
	}
	return st
}

func (e *Engine) newEvent(typ EventType, sessionID, visitorID string) *Event {
	return &Event{
		EventType: typ,
		EventID:   fmt.Sprintf("%s_%s", typ, ulid.Make()),
		Timestamp: e.clock.Now().UTC(),
		SessionID: sessionID,
		VisitorID: visitorID,
	}
}

// record appends the event to the local log and queues remote delivery.
// Storage failures are swallowed: the in-memory state keeps working and
// the failure is only logged.
func (e *Engine) record(ctx context.Context, event *Event) *Event {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Errorf("failed to marshal %s event: %v", event.EventType, err)
		return event
	}

	if err := e.store.PushTrim(ctx, eventLogKey, string(payload), e.cfg.MaxStoredEvents); err != nil {
		e.logger.Warnf("failed to store %s event locally: %v", event.EventType, err)
	}

	if e.forwarder != nil {
		e.forwarder.Enqueue(payload)
	}

	return event
}

func (e *Engine) totalTime(st *sessionState, now time.Time) *int64 {
	if st.startTime.IsZero() {
		return nil
	}
	ms := now.Sub(st.startTime).Milliseconds()
	return &ms
}

// StartSession records session_start with device, UTM and referrer context.
// At most one session_start is recorded per session; later calls no-op.
func (e *Engine) StartSession(ctx context.Context, sessionID, visitorID, url string, device *DeviceInfo, utm *UTMParams) *Event {
	now := e.clock.Now()

	e.mu.Lock()
	st := e.state(sessionID)
	if st.started {
		e.mu.Unlock()
		return nil
	}
	st.started = true
	st.startTime = now
	st.visitorID = visitorID
	st.lastActivity = now
	e.mu.Unlock()

	event := e.newEvent(EventSessionStart, sessionID, visitorID)
	event.URL = url
	event.DeviceInfo = device
	event.UTMParams = utm

	return e.record(ctx, event)
}

// TrackQuestionView records a step view. Time on the previously active
// step is measured from its most recent visit so durations stay correct
// across back-navigation; revisits are flagged without disturbing the
// step's first-view timestamp.
func (e *Engine) TrackQuestionView(ctx context.Context, sessionID string, idx int, field string) *Event {
	now := e.clock.Now()

	e.mu.Lock()
	st := e.state(sessionID)

	var timeOnPrev *int64
	var prevIdx *int
	if st.lastQuestionIndex >= 0 && st.lastQuestionIndex != idx {
		prev := st.lastQuestionIndex
		prevIdx = &prev
		ts, ok := st.latestView[prev]
		if !ok {
			ts, ok = st.firstView[prev]
		}
		if ok {
			ms := now.Sub(ts).Milliseconds()
			timeOnPrev = &ms
		}
	}

	_, isRevisit := st.firstView[idx]
	if !isRevisit {
		st.firstView[idx] = now
	}
	st.latestView[idx] = now
	st.lastQuestionIndex = idx
	st.lastActivity = now

	total := e.totalTime(st, now)
	visitorID := st.visitorID
	e.mu.Unlock()

	event := e.newEvent(EventQuestionView, sessionID, visitorID)
	event.QuestionIndex = &idx
	event.QuestionNumber = idx + 1
	event.QuestionLabel = e.label(idx)
	event.QuestionFieldName = field
	event.PreviousQuestionIndex = prevIdx
	event.TimeOnPreviousQuestion = timeOnPrev
	event.TotalTimeInFunnel = total
	event.ProgressPercent = e.progressPercent(idx)
	event.IsRevisit = isRevisit

	return e.record(ctx, event)
}

// TrackQuestionAnswered records the fine-grained answer signal with
// time-to-answer measured from the step's first view.
func (e *Engine) TrackQuestionAnswered(ctx context.Context, sessionID string, idx int, field, answerType string) *Event {
	now := e.clock.Now()

	e.mu.Lock()
	st := e.state(sessionID)
	var timeToAnswer *int64
	if ts, ok := st.firstView[idx]; ok {
		ms := now.Sub(ts).Milliseconds()
		timeToAnswer = &ms
	}
	st.lastActivity = now
	visitorID := st.visitorID
	e.mu.Unlock()

	event := e.newEvent(EventQuestionAnswered, sessionID, visitorID)
	event.QuestionIndex = &idx
	event.QuestionNumber = idx + 1
	event.QuestionLabel = e.label(idx)
	event.QuestionFieldName = field
	event.AnswerType = answerType
	event.TimeToAnswer = timeToAnswer
	event.ProgressPercent = e.progressPercent(idx)

	return e.record(ctx, event)
}

// TrackQuestionCompleted records a validated step completion. Time on the
// step is measured from the most recent visit, not the first, so a user
// who went back and re-completed the step is attributed only the return
// visit's duration.
func (e *Engine) TrackQuestionCompleted(ctx context.Context, sessionID string, idx int, field string) *Event {
	now := e.clock.Now()

	e.mu.Lock()
	st := e.state(sessionID)

	var timeOnQuestion *int64
	ts, ok := st.latestView[idx]
	if !ok {
		ts, ok = st.firstView[idx]
	}
	if ok {
		ms := now.Sub(ts).Milliseconds()
		timeOnQuestion = &ms
	}

	st.lastActivity = now
	total := e.totalTime(st, now)
	visitorID := st.visitorID
	e.mu.Unlock()

	next := idx + 1
	event := e.newEvent(EventQuestionCompleted, sessionID, visitorID)
	event.QuestionIndex = &idx
	event.QuestionNumber = idx + 1
	event.QuestionLabel = e.label(idx)
	event.QuestionFieldName = field
	event.TimeOnQuestion = timeOnQuestion
	event.TotalTimeInFunnel = total
	event.ProgressPercent = e.progressPercent(idx)
	event.NextQuestionIndex = &next

	return e.record(ctx, event)
}

// TrackQuestionBack records back-navigation with both endpoints
func (e *Engine) TrackQuestionBack(ctx context.Context, sessionID string, from, to int) *Event {
	e.mu.Lock()
	st := e.state(sessionID)
	st.lastActivity = e.clock.Now()
	visitorID := st.visitorID
	e.mu.Unlock()

	event := e.newEvent(EventQuestionBack, sessionID, visitorID)
	event.FromQuestionIndex = &from
	event.ToQuestionIndex = &to
	event.FromQuestionLabel = e.label(from)
	event.ToQuestionLabel = e.label(to)

	return e.record(ctx, event)
}

// TrackFormSubmitted records the terminal completion event. A one-shot
// latch makes later calls in the same session no-ops, so retried network
// calls or duplicate click handlers cannot double count.
func (e *Engine) TrackFormSubmitted(ctx context.Context, sessionID string, summary SubmissionSummary) *Event {
	now := e.clock.Now()

	e.mu.Lock()
	st := e.state(sessionID)
	if st.submissionTracked {
		e.mu.Unlock()
		return nil
	}
	st.submissionTracked = true
	st.lastActivity = now
	total := e.totalTime(st, now)
	visitorID := st.visitorID
	e.mu.Unlock()

	hasEmail := summary.HasEmail
	hasPhone := summary.HasPhone

	event := e.newEvent(EventFormSubmitted, sessionID, visitorID)
	event.TotalTimeInFunnel = total
	event.QuestionsCompleted = summary.QuestionsCompleted
	event.HasEmail = &hasEmail
	event.HasPhone = &hasPhone
	event.IncomeLevel = orNotProvided(summary.IncomeLevel)
	event.ReadinessLevel = orNotProvided(summary.ReadinessLevel)
	event.PriorityLevel = orNotProvided(summary.PriorityLevel)

	return e.record(ctx, event)
}

func orNotProvided(s string) string {
	if s == "" {
		return "not_provided"
	}
	return s
}

// TrackSubmissionError records a failed webhook submission. The message is
// truncated before storage and transmission.
func (e *Engine) TrackSubmissionError(ctx context.Context, sessionID, message string, idx int) *Event {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}

	e.mu.Lock()
	st := e.state(sessionID)
	st.lastActivity = e.clock.Now()
	visitorID := st.visitorID
	e.mu.Unlock()

	event := e.newEvent(EventSubmissionError, sessionID, visitorID)
	event.ErrorMessage = message
	event.QuestionIndex = &idx
	event.QuestionLabel = e.label(idx)

	return e.record(ctx, event)
}

// TrackDropOff records a session abandoning the funnel. Guarded by its own
// one-shot latch and suppressed entirely once a submission has been
// tracked: a completed session is never also a drop-off. When answers is
// nil the engine's last known answers for the session are used.
func (e *Engine) TrackDropOff(ctx context.Context, sessionID string, lastIdx int, answers map[string]interface{}) *Event {
	now := e.clock.Now()

	e.mu.Lock()
	st := e.state(sessionID)
	if st.dropOffTracked || st.submissionTracked {
		e.mu.Unlock()
		return nil
	}
	st.dropOffTracked = true

	if answers == nil {
		answers = st.answers
	}

	var timeOnLast *int64
	ts, ok := st.latestView[lastIdx]
	if !ok {
		ts, ok = st.firstView[lastIdx]
	}
	if ok {
		ms := now.Sub(ts).Milliseconds()
		timeOnLast = &ms
	}

	total := e.totalTime(st, now)
	visitorID := st.visitorID
	e.mu.Unlock()

	answered := answeredFields(answers)

	event := e.newEvent(EventDropOff, sessionID, visitorID)
	event.LastQuestionIndex = &lastIdx
	event.LastQuestionNumber = lastIdx + 1
	event.LastQuestionLabel = e.label(lastIdx)
	event.TimeOnLastQuestion = timeOnLast
	event.TotalTimeInFunnel = total
	event.ProgressPercent = e.progressPercent(lastIdx)
	event.QuestionsAnswered = len(answered)
	event.AnsweredFields = answered

	return e.record(ctx, event)
}

// answeredFields lists the non-empty answer fields, sorted for stable
// output. A structured answer counts as non-empty when any of its own
// sub-values is non-empty.
func answeredFields(answers map[string]interface{}) []string {
	var fields []string
	for name, value := range answers {
		if nonEmptyValue(value) {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

func nonEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []string:
		return len(val) > 0
	case []interface{}:
		return len(val) > 0
	case map[string]string:
		for _, sub := range val {
			if sub != "" {
				return true
			}
		}
		return false
	case map[string]interface{}:
		for _, sub := range val {
			if nonEmptyValue(sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// UpdateState refreshes the engine's view of the session's progress and
// answers, used when a timed drop-off trigger later needs them.
func (e *Engine) UpdateState(sessionID string, lastIdx int, answers map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(sessionID)
	st.lastQuestionIndex = lastIdx
	if answers != nil {
		st.answers = answers
	}
}

// RecordActivity marks the session as active, deferring the inactivity
// drop-off trigger.
func (e *Engine) RecordActivity(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(sessionID)
	st.lastActivity = e.clock.Now()
}

// RecordVisibility tracks page visibility. Hidden time is measured so the
// sweeper can distinguish a real departure from a brief tab switch.
func (e *Engine) RecordVisibility(sessionID string, hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state(sessionID)
	if hidden {
		now := e.clock.Now()
		st.hiddenSince = &now
	} else {
		st.hiddenSince = nil
		st.lastActivity = e.clock.Now()
	}
}

// SignalUnload applies the drop-off policy for an explicit page unload:
// a drop-off is recorded only while the session is before the terminal
// step and unsubmitted. The shared latch still applies.
func (e *Engine) SignalUnload(ctx context.Context, sessionID string) *Event {
	e.mu.Lock()
	st := e.state(sessionID)
	lastIdx := st.lastQuestionIndex
	eligible := lastIdx >= 0 && lastIdx < e.terminalIndex() && !st.submissionTracked && !st.dropOffTracked
	e.mu.Unlock()

	if !eligible {
		return nil
	}
	return e.TrackDropOff(ctx, sessionID, lastIdx, nil)
}
