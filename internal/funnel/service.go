package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
	"github.com/wayfindercollective/funnel-backend/internal/common/kvstore"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionSubmitted = errors.New("session already submitted")
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrValidation       = errors.New("answer does not satisfy the current question")
	ErrFieldMismatch    = errors.New("field does not match the current question")
)

// StartRequest opens or resumes a funnel session
type StartRequest struct {
	SessionID string               `json:"sessionId"`
	VisitorID string               `json:"visitorId"`
	URL       string               `json:"url"`
	Device    *analytics.DeviceInfo `json:"deviceInfo"`
	UTM       *analytics.UTMParams  `json:"utmParams"`
}

// Service drives funnel sessions through the question sequence to
// submission.
type Service interface {
	Start(ctx context.Context, req StartRequest) (*SessionView, error)
	Get(ctx context.Context, sessionID string) (*SessionView, error)
	Answer(ctx context.Context, sessionID, field string, value json.RawMessage) (*SessionView, error)
	Advance(ctx context.Context, sessionID string) (*SessionView, error)
	Back(ctx context.Context, sessionID string) (*SessionView, error)
	Submit(ctx context.Context, sessionID string) (*SessionView, error)
	Signal(ctx context.Context, sessionID, kind string) error
	Questions() []Question
}

// ServiceConfig tunes controller behavior. Zero values get the shipped
// defaults.
type ServiceConfig struct {
	Questions        []Question
	AutoAdvanceDelay time.Duration

	NudgeWait   time.Duration
	NudgeBounce time.Duration
	NudgeCool   time.Duration
}

type session struct {
	id        string
	visitorID string
	status    SessionStatus
	step      int
	answers   Answers

	// payload is frozen on the first submission attempt so a retry posts
	// exactly what failed before
	payload *SubmissionPayload

	lastErr     *SubmissionError
	submittedAt *time.Time
	resumed     bool

	nudger    *AttentionNudger
	autoTimer *time.Timer
}

type funnelService struct {
	cfg     ServiceConfig
	store   kvstore.Store
	engine  *analytics.Engine
	webhook *WebhookClient
	logger  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService creates the funnel controller
func NewService(cfg ServiceConfig, store kvstore.Store, engine *analytics.Engine, webhook *WebhookClient, log *logger.Logger) Service {
	if len(cfg.Questions) == 0 {
		cfg.Questions = DefaultQuestions()
	}
	if cfg.AutoAdvanceDelay == 0 {
		cfg.AutoAdvanceDelay = 150 * time.Millisecond
	}

	return &funnelService{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		webhook:  webhook,
		logger:   log,
		sessions: make(map[string]*session),
	}
}

func (s *funnelService) Questions() []Question {
	return s.cfg.Questions
}

func (s *funnelService) lastStep() int {
	return len(s.cfg.Questions) - 1
}

func draftKey(visitorID string) string {
	return "funnel:draft:" + visitorID
}

// marshalDraft snapshots the resume point. Caller holds the lock.
func (s *funnelService) marshalDraft(sess *session) []byte {
	draft := Draft{
		CurrentStep: sess.step,
		Answers:     sess.answers,
		Submitted:   false,
	}
	data, err := json.Marshal(draft)
	if err != nil {
		s.logger.Errorf("failed to marshal draft for %s: %v", sess.visitorID, err)
		return nil
	}
	return data
}

// saveDraft persists the resume point. Storage failures never interrupt
// the visitor; the session keeps working from memory.
func (s *funnelService) saveDraft(ctx context.Context, visitorID string, data []byte) {
	if data == nil {
		return
	}
	if err := s.store.Set(ctx, draftKey(visitorID), string(data)); err != nil {
		s.logger.Warnf("failed to save draft for %s: %v", visitorID, err)
	}
}

func (s *funnelService) loadDraft(ctx context.Context, visitorID string) *Draft {
	data, err := s.store.Get(ctx, draftKey(visitorID))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warnf("failed to load draft for %s: %v", visitorID, err)
		}
		return nil
	}
	var draft Draft
	if err := json.Unmarshal([]byte(data), &draft); err != nil {
		s.logger.Warnf("discarding undecodable draft for %s: %v", visitorID, err)
		return nil
	}
	return &draft
}

func (s *funnelService) deleteDraft(ctx context.Context, visitorID string) {
	if err := s.store.Delete(ctx, draftKey(visitorID)); err != nil {
		s.logger.Warnf("failed to delete draft for %s: %v", visitorID, err)
	}
}

func (s *funnelService) view(sess *session) *SessionView {
	total := len(s.cfg.Questions)
	view := &SessionView{
		SessionID:       sess.id,
		Status:          sess.status,
		CurrentStep:     sess.step,
		TotalSteps:      total,
		ProgressPercent: float64(sess.step+1) / float64(total) * 100,
		Answers:         sess.answers,
		NudgeActive:     sess.nudger.Active(),
		Error:           sess.lastErr,
		Resumed:         sess.resumed,
		SubmittedAt:     sess.submittedAt,
	}
	if sess.status == StatusAnswering || sess.status == StatusFailed {
		q := s.cfg.Questions[sess.step]
		view.Question = &q
	}
	return view
}

func (s *funnelService) Start(ctx context.Context, req StartRequest) (*SessionView, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session_%s", ulid.Make())
	}
	visitorID := req.VisitorID
	if visitorID == "" {
		visitorID = fmt.Sprintf("visitor_%s", ulid.Make())
	}

	s.mu.Lock()
	sess, exists := s.sessions[sessionID]
	if !exists {
		sess = &session{
			id:        sessionID,
			visitorID: visitorID,
			status:    StatusAnswering,
			answers:   make(Answers),
			nudger:    NewAttentionNudger(s.cfg.NudgeWait, s.cfg.NudgeBounce, s.cfg.NudgeCool),
		}
		if draft := s.loadDraft(ctx, visitorID); draft != nil && !draft.Submitted {
			step := draft.CurrentStep
			if step < 0 {
				step = 0
			}
			if step > s.lastStep() {
				step = s.lastStep()
			}
			sess.step = step
			if draft.Answers != nil {
				sess.answers = draft.Answers
			}
			sess.resumed = true
		}
		s.sessions[sessionID] = sess
	}
	step := sess.step
	answers := sess.answers.Native()
	s.mu.Unlock()

	sess.nudger.Start()

	s.engine.StartSession(ctx, sessionID, visitorID, req.URL, req.Device, req.UTM)
	s.engine.UpdateState(sessionID, step, answers)
	s.engine.TrackQuestionView(ctx, sessionID, step, s.cfg.Questions[step].FieldName)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(sess), nil
}

func (s *funnelService) Get(_ context.Context, sessionID string) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.view(sess), nil
}

func (s *funnelService) Answer(ctx context.Context, sessionID, field string, value json.RawMessage) (*SessionView, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch sess.status {
	case StatusSubmitted:
		s.mu.Unlock()
		return nil, ErrSessionSubmitted
	case StatusSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}

	q := s.cfg.Questions[sess.step]
	if field != q.FieldName {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: got %q, current question is %q", ErrFieldMismatch, field, q.FieldName)
	}

	answer, err := DecodeAnswer(q, value)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	sess.answers[field] = answer
	step := sess.step
	answers := sess.answers.Native()
	draft := s.marshalDraft(sess)
	visitorID := sess.visitorID

	// single-select choices advance on their own shortly after selection;
	// multi-select steps wait for an explicit advance
	autoAdvance := q.Type == TypeMultipleChoice && !q.MultiSelect && CanAdvance(q, answer)
	if autoAdvance {
		if sess.autoTimer != nil {
			sess.autoTimer.Stop()
		}
		sess.autoTimer = time.AfterFunc(s.cfg.AutoAdvanceDelay, func() {
			if _, err := s.advance(context.Background(), sessionID, &step); err != nil {
				s.logger.Warnf("auto-advance failed for %s: %v", sessionID, err)
			}
		})
	}
	s.mu.Unlock()

	sess.nudger.Activity()
	s.engine.RecordActivity(sessionID)

	s.saveDraft(ctx, visitorID, draft)
	s.engine.TrackQuestionAnswered(ctx, sessionID, step, field, string(q.Type))
	s.engine.UpdateState(sessionID, step, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(sess), nil
}

func (s *funnelService) Advance(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.advance(ctx, sessionID, nil)
}

// advance moves the session past the current question. expectStep guards
// auto-advance timers: a stale timer whose step no longer matches does
// nothing.
func (s *funnelService) advance(ctx context.Context, sessionID string, expectStep *int) (*SessionView, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch sess.status {
	case StatusSubmitted:
		s.mu.Unlock()
		return nil, ErrSessionSubmitted
	case StatusSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if expectStep != nil && sess.step != *expectStep {
		view := s.view(sess)
		s.mu.Unlock()
		return view, nil
	}

	q := s.cfg.Questions[sess.step]
	answer := sess.answers[q.FieldName]
	if !CanAdvance(q, answer) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrValidation, q.FieldName)
	}

	if sess.autoTimer != nil {
		sess.autoTimer.Stop()
		sess.autoTimer = nil
	}

	step := sess.step
	atEnd := step == s.lastStep()
	if !atEnd {
		sess.step++
	}
	nextStep := sess.step
	answers := sess.answers.Native()
	draft := s.marshalDraft(sess)
	visitorID := sess.visitorID
	s.mu.Unlock()

	s.engine.TrackQuestionCompleted(ctx, sessionID, step, q.FieldName)
	s.engine.RecordActivity(sessionID)
	sess.nudger.Activity()

	if atEnd {
		return s.Submit(ctx, sessionID)
	}

	s.saveDraft(ctx, visitorID, draft)
	s.engine.UpdateState(sessionID, nextStep, answers)
	s.engine.TrackQuestionView(ctx, sessionID, nextStep, s.cfg.Questions[nextStep].FieldName)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(sess), nil
}

func (s *funnelService) Back(ctx context.Context, sessionID string) (*SessionView, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch sess.status {
	case StatusSubmitted:
		s.mu.Unlock()
		return nil, ErrSessionSubmitted
	case StatusSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if sess.step == 0 {
		view := s.view(sess)
		s.mu.Unlock()
		return view, nil
	}

	if sess.autoTimer != nil {
		sess.autoTimer.Stop()
		sess.autoTimer = nil
	}

	from := sess.step
	sess.step--
	to := sess.step
	answers := sess.answers.Native()
	draft := s.marshalDraft(sess)
	visitorID := sess.visitorID
	s.mu.Unlock()

	sess.nudger.Activity()
	s.engine.RecordActivity(sessionID)
	s.engine.TrackQuestionBack(ctx, sessionID, from, to)
	s.saveDraft(ctx, visitorID, draft)
	s.engine.UpdateState(sessionID, to, answers)
	s.engine.TrackQuestionView(ctx, sessionID, to, s.cfg.Questions[to].FieldName)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(sess), nil
}

// Submit posts the collected answers to the intake webhook. On failure the
// session moves to failed and stays retryable; the retry posts the same
// frozen payload.
func (s *funnelService) Submit(ctx context.Context, sessionID string) (*SessionView, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch sess.status {
	case StatusSubmitted:
		s.mu.Unlock()
		return nil, ErrSessionSubmitted
	case StatusSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}

	for _, q := range s.cfg.Questions {
		if !CanAdvance(q, sess.answers[q.FieldName]) {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrValidation, q.FieldName)
		}
	}

	sess.status = StatusSubmitting
	sess.lastErr = nil
	if sess.payload == nil {
		payload := BuildSubmissionPayload(sess.answers, time.Now())
		sess.payload = &payload
	}
	payload := *sess.payload
	s.mu.Unlock()

	ack, serr := s.webhook.Submit(ctx, payload)

	s.mu.Lock()
	if serr != nil {
		sess.status = StatusFailed
		sess.lastErr = serr
		s.mu.Unlock()

		s.engine.TrackSubmissionError(ctx, sessionID, serr.Detail, s.lastStep())
		s.logger.Warnf("submission failed for %s (%s): %s", sessionID, serr.Class, serr.Detail)

		s.mu.Lock()
		defer s.mu.Unlock()
		return s.view(sess), nil
	}

	now := time.Now().UTC()
	sess.status = StatusSubmitted
	sess.submittedAt = &now
	visitorID := sess.visitorID
	summary := BuildSubmissionSummary(s.cfg.Questions, sess.answers)
	s.mu.Unlock()

	sess.nudger.Stop()
	s.engine.TrackFormSubmitted(ctx, sessionID, summary)
	s.deleteDraft(ctx, visitorID)
	s.logger.Infof("session %s submitted, webhook ack: %v", sessionID, ack["status"])

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(sess), nil
}

// Signal feeds page lifecycle hints into the analytics engine
func (s *funnelService) Signal(ctx context.Context, sessionID, kind string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	switch kind {
	case "activity":
		sess.nudger.Activity()
		s.engine.RecordActivity(sessionID)
	case "hidden":
		s.engine.RecordVisibility(sessionID, true)
	case "visible":
		s.engine.RecordVisibility(sessionID, false)
	case "unload":
		s.engine.SignalUnload(ctx, sessionID)
	default:
		return fmt.Errorf("unknown signal %q", kind)
	}
	return nil
}
