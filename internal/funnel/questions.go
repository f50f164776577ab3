package funnel

// DefaultQuestions is the seven-step intake funnel as shipped. The order
// here drives everything downstream: analytics labels, progress math and
// the submission payload all derive from this list.
func DefaultQuestions() []Question {
	return []Question{
		{
			ID:          1,
			Type:        TypeTextarea,
			Prompt:      "Which area of your life do you want to improve most, and why?",
			Placeholder: "Tell us about what matters most to you...",
			Required:    true,
			FieldName:   "lifeArea",
			Label:       "Life Area",
		},
		{
			ID:        2,
			Type:      TypeScale,
			Prompt:    "How much of a priority is this in your life?",
			Min:       1,
			Max:       10,
			Required:  true,
			FieldName: "priority",
			Label:     "Priority Level",
		},
		{
			ID:     3,
			Type:   TypeMultipleChoice,
			Prompt: "Assuming you were provided a correct solution, would you invest financially in fixing this today?",
			Options: []string{
				"I'm ready to invest in myself today",
				"I'd need to move funds around, but it's a priority",
				"I'd prefer to get free resources first",
			},
			Required:  true,
			FieldName: "investmentReadiness",
			Label:     "Investment Readiness",
		},
		{
			ID:     4,
			Type:   TypeMultipleChoice,
			Prompt: "What's your current income in USD, per month?",
			Options: []string{
				"$100k+ Per Month",
				"$10-100k Per Month",
				"$5-10k Per Month",
				"$3-5k Per Month",
				"$1-3k Per Month",
				"$0-1k Per Month",
			},
			Required:  true,
			FieldName: "income",
			Label:     "Income Level",
		},
		{
			ID:          5,
			Type:        TypeEmail,
			Prompt:      "What's the best Email to contact you with?",
			Placeholder: "your.email@example.com",
			Required:    true,
			FieldName:   "email",
			Label:       "Email Address",
		},
		{
			ID:         6,
			Type:       TypePhone,
			Prompt:     "What's the best Phone number to reach out on?",
			Disclaimer: "By providing a telephone number and submitting this form you are consenting to be contacted by SMS text message. Message & data rates may apply. You can reply STOP to opt-out of further messaging.",
			Required:   true,
			FieldName:  "phone",
			Label:      "Phone Number",
		},
		{
			ID:        7,
			Type:      TypeName,
			Prompt:    "What's your First and Last name?",
			Required:  true,
			FieldName: "name",
			Label:     "Full Name",
		},
	}
}

// Labels extracts the analytics step names in funnel order
func Labels(questions []Question) []string {
	labels := make([]string, len(questions))
	for i, q := range questions {
		labels[i] = q.Label
	}
	return labels
}
