package funnel

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBuildSubmissionPayload(t *testing.T) {
	answers := Answers{
		"lifeArea":            {Kind: TypeTextarea, Text: "career growth"},
		"priority":            {Kind: TypeScale, Scale: 8},
		"investmentReadiness": {Kind: TypeMultipleChoice, Text: "I'm ready to invest in myself today"},
		"income":              {Kind: TypeMultipleChoice, Text: "$5-10k Per Month"},
		"email":               {Kind: TypeEmail, Text: "ada@example.com"},
		"phone":               {Kind: TypePhone, Phone: &PhoneAnswer{Country: "UK", Phone: "7911123456"}},
		"name":                {Kind: TypeName, Name: &NameAnswer{FirstName: "Ada", LastName: "Lovelace"}},
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p := BuildSubmissionPayload(answers, now)

	if p.LifeArea != "career growth" || p.Priority != 8 || p.Income != "$5-10k Per Month" {
		t.Errorf("scalar fields wrong: %+v", p)
	}
	if p.Phone != "7911123456" || p.PhoneCountry != "UK" || p.FullPhone != "+447911123456" {
		t.Errorf("phone fields = %q %q %q", p.Phone, p.PhoneCountry, p.FullPhone)
	}
	if p.FullName != "Ada Lovelace" {
		t.Errorf("FullName = %q, want Ada Lovelace", p.FullName)
	}
	// legacy mirrors the downstream mapping still reads
	if p.PriorityLevel != 8 || p.Commitment != 8 {
		t.Errorf("PriorityLevel = %d, Commitment = %d, want both 8", p.PriorityLevel, p.Commitment)
	}
	if p.Readiness != p.InvestmentReadiness {
		t.Errorf("Readiness = %q, want %q", p.Readiness, p.InvestmentReadiness)
	}
	if p.SubmittedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("SubmittedAt = %q", p.SubmittedAt)
	}
	if p.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", p.Timestamp, now.UnixMilli())
	}
}

func TestBuildSubmissionPayloadMissingAnswers(t *testing.T) {
	p := BuildSubmissionPayload(Answers{}, time.Now())

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)

	// absent answers serialize as empty strings, never null
	for _, field := range []string{"lifeArea", "email", "phone", "fullPhone", "fullName", "readiness"} {
		v, ok := decoded[field]
		if !ok {
			t.Errorf("field %s missing from payload", field)
			continue
		}
		if v != "" {
			t.Errorf("field %s = %v, want empty string", field, v)
		}
	}
}

func TestBuildSubmissionSummary(t *testing.T) {
	questions := DefaultQuestions()
	answers := Answers{
		"lifeArea":            {Kind: TypeTextarea, Text: "health"},
		"priority":            {Kind: TypeScale, Scale: 9},
		"investmentReadiness": {Kind: TypeMultipleChoice, Text: "I'd prefer to get free resources first"},
		"income":              {Kind: TypeMultipleChoice, Text: "$1-3k Per Month"},
		"email":               {Kind: TypeEmail, Text: "ada@example.com"},
		"phone":               {Kind: TypePhone, Phone: &PhoneAnswer{Country: "US", Phone: "5551234567"}},
		"name":                {Kind: TypeName, Name: &NameAnswer{FirstName: "Ada", LastName: "Lovelace"}},
	}

	summary := BuildSubmissionSummary(questions, answers)

	if summary.QuestionsCompleted != 7 {
		t.Errorf("QuestionsCompleted = %d, want 7", summary.QuestionsCompleted)
	}
	if !summary.HasEmail || !summary.HasPhone {
		t.Errorf("HasEmail = %v, HasPhone = %v, want both true", summary.HasEmail, summary.HasPhone)
	}
	if summary.PriorityLevel != "9" {
		t.Errorf("PriorityLevel = %q, want 9", summary.PriorityLevel)
	}
	if summary.IncomeLevel != "$1-3k Per Month" {
		t.Errorf("IncomeLevel = %q", summary.IncomeLevel)
	}
	if summary.ReadinessLevel != "I'd prefer to get free resources first" {
		t.Errorf("ReadinessLevel = %q", summary.ReadinessLevel)
	}
}
