package analytics

import (
	"time"
)

// EventType identifies a funnel analytics event
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventQuestionView      EventType = "question_view"
	EventQuestionAnswered  EventType = "question_answered"
	EventQuestionCompleted EventType = "question_completed"
	EventQuestionBack      EventType = "question_back"
	EventFormSubmitted     EventType = "form_submitted"
	EventSubmissionError   EventType = "submission_error"
	EventDropOff           EventType = "drop_off"
)

// DeviceInfo captures coarse client segmentation data, reported once at
// session start.
type DeviceInfo struct {
	DeviceType   string `json:"deviceType"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`
	UserAgent    string `json:"userAgent"`
	Language     string `json:"language"`
	Timezone     string `json:"timezone"`
	Referrer     string `json:"referrer"`
}

// UTMParams are the campaign query parameters captured at session start
type UTMParams struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
	Term     string `json:"utm_term"`
	Content  string `json:"utm_content"`
}

// Event is one immutable record in the funnel event log. The log is
// append-only: events are never mutated or deleted individually, only
// trimmed from the oldest end or cleared wholesale.
//
// All duration fields are milliseconds.
type Event struct {
	EventType EventType `json:"eventType"`
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	VisitorID string    `json:"visitorId"`

	// session_start
	URL        string      `json:"url,omitempty"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
	UTMParams  *UTMParams  `json:"utmParams,omitempty"`

	// question-scoped events
	QuestionIndex          *int   `json:"questionIndex,omitempty"`
	QuestionNumber         int    `json:"questionNumber,omitempty"`
	QuestionLabel          string `json:"questionLabel,omitempty"`
	QuestionFieldName      string `json:"questionFieldName,omitempty"`
	PreviousQuestionIndex  *int   `json:"previousQuestionIndex,omitempty"`
	TimeOnPreviousQuestion *int64 `json:"timeOnPreviousQuestion,omitempty"`
	TotalTimeInFunnel      *int64 `json:"totalTimeInFunnel,omitempty"`
	ProgressPercent        int    `json:"progressPercent,omitempty"`
	IsRevisit              bool   `json:"isRevisit,omitempty"`

	// question_answered / question_completed
	AnswerType        string `json:"answerType,omitempty"`
	TimeToAnswer      *int64 `json:"timeToAnswer,omitempty"`
	TimeOnQuestion    *int64 `json:"timeOnQuestion,omitempty"`
	NextQuestionIndex *int   `json:"nextQuestionIndex,omitempty"`

	// question_back
	FromQuestionIndex *int   `json:"fromQuestionIndex,omitempty"`
	ToQuestionIndex   *int   `json:"toQuestionIndex,omitempty"`
	FromQuestionLabel string `json:"fromQuestionLabel,omitempty"`
	ToQuestionLabel   string `json:"toQuestionLabel,omitempty"`

	// form_submitted: presence flags and non-sensitive categorical answers
	// only, never raw contact values
	QuestionsCompleted int    `json:"questionsCompleted,omitempty"`
	HasEmail           *bool  `json:"hasEmail,omitempty"`
	HasPhone           *bool  `json:"hasPhone,omitempty"`
	IncomeLevel        string `json:"incomeLevel,omitempty"`
	ReadinessLevel     string `json:"readinessLevel,omitempty"`
	PriorityLevel      string `json:"priorityLevel,omitempty"`

	// submission_error
	ErrorMessage string `json:"errorMessage,omitempty"`

	// drop_off
	LastQuestionIndex  *int     `json:"lastQuestionIndex,omitempty"`
	LastQuestionNumber int      `json:"lastQuestionNumber,omitempty"`
	LastQuestionLabel  string   `json:"lastQuestionLabel,omitempty"`
	TimeOnLastQuestion *int64   `json:"timeOnLastQuestion,omitempty"`
	QuestionsAnswered  int      `json:"questionsAnswered,omitempty"`
	AnsweredFields     []string `json:"answeredFields,omitempty"`
}

// SubmissionSummary is the non-sensitive projection of the collected
// answers recorded on form_submitted.
type SubmissionSummary struct {
	QuestionsCompleted int
	HasEmail           bool
	HasPhone           bool
	IncomeLevel        string
	ReadinessLevel     string
	PriorityLevel      string
}

// QuestionStat is the per-step aggregate in a funnel report.
// SessionsReached is the funnel denominator (unique sessions whose
// high-water mark is at or beyond the step); Views is the raw view-event
// count, kept for reference only.
type QuestionStat struct {
	Name            string  `json:"name"`
	Number          int     `json:"number"`
	Views           int     `json:"views"`
	SessionsReached int     `json:"sessionsReached"`
	Completions     int     `json:"completions"`
	DropOffs        int     `json:"dropOffs"`
	Rate            float64 `json:"rate"`
	AvgTimeSeconds  int     `json:"avgTimeSeconds"`
}

// DropOffSummary is a display-friendly projection of a recent drop_off event
type DropOffSummary struct {
	Time         string `json:"time"`
	Question     string `json:"question"`
	QuestionName string `json:"questionName"`
}

// FunnelReport is the aggregate computed from the full event log
type FunnelReport struct {
	TotalSessions  int              `json:"totalSessions"`
	Completed      int              `json:"completed"`
	ConversionRate float64          `json:"conversionRate"`
	Questions      []QuestionStat   `json:"questions"`
	RecentDropOffs []DropOffSummary `json:"recentDropOffs"`
}
