package funnel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionType identifies the input widget and validation rules of a step
type QuestionType string

const (
	TypeTextarea       QuestionType = "textarea"
	TypeScale          QuestionType = "scale"
	TypeMultipleChoice QuestionType = "multiple-choice"
	TypeEmail          QuestionType = "email"
	TypePhone          QuestionType = "phone"
	TypeName           QuestionType = "name"
)

// Question is one step of the funnel
type Question struct {
	ID          int          `json:"id"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"question"`
	Placeholder string       `json:"placeholder,omitempty"`
	Options     []string     `json:"options,omitempty"`

	// MultiSelect turns a multiple-choice question into a pick-many:
	// the answer is a list and the step never auto-advances
	MultiSelect bool `json:"multiSelect,omitempty"`

	Min        int    `json:"min,omitempty"`
	Max        int    `json:"max,omitempty"`
	Required   bool   `json:"required"`
	FieldName  string `json:"fieldName"`
	Disclaimer string `json:"disclaimer,omitempty"`

	// Label is the short analytics name of the step
	Label string `json:"label"`
}

// PhoneAnswer is the structured value of a phone question
type PhoneAnswer struct {
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

// NameAnswer is the structured value of a name question
type NameAnswer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Answer is a tagged union over the value shapes the question types
// produce. Kind mirrors the question type that produced the value.
type Answer struct {
	Kind    QuestionType `json:"kind"`
	Text    string       `json:"text,omitempty"`
	Scale   int          `json:"scale,omitempty"`
	Choices []string     `json:"choices,omitempty"`
	Phone   *PhoneAnswer `json:"phone,omitempty"`
	Name    *NameAnswer  `json:"name,omitempty"`
}

// DecodeAnswer parses the wire value for the question into a typed Answer.
// Scalar questions accept a JSON string (or number, for scale); structured
// questions accept their object shape.
func DecodeAnswer(q Question, raw json.RawMessage) (Answer, error) {
	switch q.Type {
	case TypeMultipleChoice:
		if q.MultiSelect {
			var choices []string
			if err := json.Unmarshal(raw, &choices); err != nil {
				return Answer{}, fmt.Errorf("field %s expects a list of options: %w", q.FieldName, err)
			}
			return Answer{Kind: q.Type, Choices: choices}, nil
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Answer{}, fmt.Errorf("field %s expects a string value: %w", q.FieldName, err)
		}
		return Answer{Kind: q.Type, Text: text}, nil

	case TypeTextarea, TypeEmail:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Answer{}, fmt.Errorf("field %s expects a string value: %w", q.FieldName, err)
		}
		return Answer{Kind: q.Type, Text: text}, nil

	case TypeScale:
		var scale int
		if err := json.Unmarshal(raw, &scale); err != nil {
			return Answer{}, fmt.Errorf("field %s expects a number value: %w", q.FieldName, err)
		}
		return Answer{Kind: q.Type, Scale: scale}, nil

	case TypePhone:
		var phone PhoneAnswer
		if err := json.Unmarshal(raw, &phone); err != nil {
			return Answer{}, fmt.Errorf("field %s expects {country, phone}: %w", q.FieldName, err)
		}
		return Answer{Kind: q.Type, Phone: &phone}, nil

	case TypeName:
		var name NameAnswer
		if err := json.Unmarshal(raw, &name); err != nil {
			return Answer{}, fmt.Errorf("field %s expects {firstName, lastName}: %w", q.FieldName, err)
		}
		return Answer{Kind: q.Type, Name: &name}, nil

	default:
		return Answer{}, fmt.Errorf("unknown question type %q", q.Type)
	}
}

// IsEmpty reports whether the answer carries no usable value
func (a Answer) IsEmpty() bool {
	switch a.Kind {
	case TypeMultipleChoice:
		return strings.TrimSpace(a.Text) == "" && len(a.Choices) == 0
	case TypeTextarea, TypeEmail:
		return strings.TrimSpace(a.Text) == ""
	case TypeScale:
		return a.Scale == 0
	case TypePhone:
		return a.Phone == nil || strings.TrimSpace(a.Phone.Phone) == ""
	case TypeName:
		return a.Name == nil ||
			(strings.TrimSpace(a.Name.FirstName) == "" && strings.TrimSpace(a.Name.LastName) == "")
	default:
		return true
	}
}

// native converts the answer to its wire-shaped value, used for analytics
// answer-field accounting.
func (a Answer) native() interface{} {
	switch a.Kind {
	case TypeMultipleChoice:
		if a.Choices != nil {
			return a.Choices
		}
		return a.Text
	case TypeTextarea, TypeEmail:
		return a.Text
	case TypeScale:
		return a.Scale
	case TypePhone:
		if a.Phone == nil {
			return nil
		}
		return map[string]interface{}{"country": a.Phone.Country, "phone": a.Phone.Phone}
	case TypeName:
		if a.Name == nil {
			return nil
		}
		return map[string]interface{}{"firstName": a.Name.FirstName, "lastName": a.Name.LastName}
	default:
		return nil
	}
}

// Answers maps question field names to their typed answers
type Answers map[string]Answer

// Native converts all answers to their wire shapes
func (a Answers) Native() map[string]interface{} {
	out := make(map[string]interface{}, len(a))
	for field, ans := range a {
		out[field] = ans.native()
	}
	return out
}

// Draft is the persisted resume point for an unfinished session. Submitted
// sessions never leave a draft behind.
type Draft struct {
	CurrentStep int     `json:"currentStep"`
	Answers     Answers `json:"answers"`
	Submitted   bool    `json:"submitted"`
}

// SessionStatus is the controller state of a funnel session
type SessionStatus string

const (
	StatusAnswering  SessionStatus = "answering"
	StatusSubmitting SessionStatus = "submitting"
	StatusSubmitted  SessionStatus = "submitted"
	StatusFailed     SessionStatus = "failed"
)

// SessionView is the client-facing projection of a session
type SessionView struct {
	SessionID       string           `json:"sessionId"`
	Status          SessionStatus    `json:"status"`
	CurrentStep     int              `json:"currentStep"`
	TotalSteps      int              `json:"totalSteps"`
	ProgressPercent float64          `json:"progressPercent"`
	Question        *Question        `json:"question,omitempty"`
	Answers         Answers          `json:"answers"`
	NudgeActive     bool             `json:"nudgeActive"`
	Error           *SubmissionError `json:"error,omitempty"`
	Resumed         bool             `json:"resumed"`
	SubmittedAt     *time.Time       `json:"submittedAt,omitempty"`
}
