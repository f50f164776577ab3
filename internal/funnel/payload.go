package funnel

import (
	"strconv"
	"strings"
	"time"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
)

// SubmissionPayload is the flat document posted to the intake webhook.
// Structured answers are spread into the CRM-friendly fields the receiving
// workflow maps onto contact records; absent answers become empty strings
// rather than nulls.
type SubmissionPayload struct {
	LifeArea            string `json:"lifeArea"`
	Priority            int    `json:"priority,omitempty"`
	InvestmentReadiness string `json:"investmentReadiness"`
	Income              string `json:"income"`
	Email               string `json:"email"`

	// historical names the downstream mapping still reads; kept in
	// lockstep with priority and investmentReadiness
	PriorityLevel int    `json:"priorityLevel,omitempty"`
	Commitment    int    `json:"commitment,omitempty"`
	Readiness     string `json:"readiness"`

	Phone        string `json:"phone"`
	PhoneCountry string `json:"phoneCountry"`
	FullPhone    string `json:"fullPhone"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`

	SubmittedAt string `json:"submittedAt"`
	Timestamp   int64  `json:"timestamp"`
}

// BuildSubmissionPayload flattens the collected answers at submission time
func BuildSubmissionPayload(answers Answers, now time.Time) SubmissionPayload {
	p := SubmissionPayload{
		LifeArea:            answers["lifeArea"].Text,
		Priority:            answers["priority"].Scale,
		InvestmentReadiness: answers["investmentReadiness"].Text,
		Income:              answers["income"].Text,
		Email:               answers["email"].Text,
		SubmittedAt:         now.UTC().Format(time.RFC3339),
		Timestamp:           now.UnixMilli(),
	}
	p.PriorityLevel = p.Priority
	p.Commitment = p.Priority
	p.Readiness = p.InvestmentReadiness

	if phone := answers["phone"].Phone; phone != nil {
		p.Phone = phone.Phone
		p.PhoneCountry = phone.Country
		p.FullPhone = FullPhone(phone.Country, phone.Phone)
	}

	if name := answers["name"].Name; name != nil {
		p.FirstName = name.FirstName
		p.LastName = name.LastName
		if name.FirstName != "" && name.LastName != "" {
			p.FullName = name.FirstName + " " + name.LastName
		}
	}

	return p
}

// BuildSubmissionSummary projects the answers into the non-sensitive
// summary recorded on form_submitted. Contact details are reduced to
// presence flags.
func BuildSubmissionSummary(questions []Question, answers Answers) analytics.SubmissionSummary {
	completed := 0
	for _, q := range questions {
		if ans, ok := answers[q.FieldName]; ok && !ans.IsEmpty() {
			completed++
		}
	}

	priority := ""
	if p := answers["priority"].Scale; p > 0 {
		priority = strconv.Itoa(p)
	}

	return analytics.SubmissionSummary{
		QuestionsCompleted: completed,
		HasEmail:           ValidateEmail(answers["email"].Text),
		HasPhone:           answers["phone"].Phone != nil && strings.TrimSpace(answers["phone"].Phone.Phone) != "",
		IncomeLevel:        answers["income"].Text,
		ReadinessLevel:     answers["investmentReadiness"].Text,
		PriorityLevel:      priority,
	}
}
