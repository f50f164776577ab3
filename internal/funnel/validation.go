package funnel

import (
	"fmt"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail checks basic email shape: one @ with a dotted domain
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}

// ValidateAnswer checks whether the answer satisfies the question. Optional
// questions accept anything, including nothing.
func ValidateAnswer(q Question, a Answer) error {
	if !q.Required {
		return nil
	}

	switch q.Type {
	case TypeTextarea:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("field %s requires a non-empty answer", q.FieldName)
		}

	case TypeScale:
		if a.Scale < q.Min || a.Scale > q.Max {
			return fmt.Errorf("field %s requires a value between %d and %d", q.FieldName, q.Min, q.Max)
		}

	case TypeMultipleChoice:
		if q.MultiSelect {
			if len(a.Choices) == 0 {
				return fmt.Errorf("field %s requires at least one option", q.FieldName)
			}
			for _, choice := range a.Choices {
				if !isListedOption(q.Options, choice) {
					return fmt.Errorf("field %s only accepts the listed options", q.FieldName)
				}
			}
			return nil
		}
		if !isListedOption(q.Options, a.Text) {
			return fmt.Errorf("field %s requires one of the listed options", q.FieldName)
		}

	case TypeEmail:
		if !ValidateEmail(a.Text) {
			return fmt.Errorf("field %s requires a valid email address", q.FieldName)
		}

	case TypePhone:
		if a.Phone == nil || strings.TrimSpace(a.Phone.Phone) == "" || a.Phone.Country == "" {
			return fmt.Errorf("field %s requires a phone number and country", q.FieldName)
		}

	case TypeName:
		if a.Name == nil || strings.TrimSpace(a.Name.FirstName) == "" || strings.TrimSpace(a.Name.LastName) == "" {
			return fmt.Errorf("field %s requires both first and last name", q.FieldName)
		}

	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}

	return nil
}

func isListedOption(options []string, value string) bool {
	for _, opt := range options {
		if value == opt {
			return true
		}
	}
	return false
}

// CanAdvance reports whether the session may move past the question with
// the given answer.
func CanAdvance(q Question, a Answer) bool {
	return ValidateAnswer(q, a) == nil
}
