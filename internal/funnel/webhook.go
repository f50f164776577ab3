package funnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrorClass categorizes why a webhook submission failed
type ErrorClass string

const (
	ErrorConnectivity         ErrorClass = "connectivity"
	ErrorBlocked              ErrorClass = "blocked"
	ErrorEndpointNotActivated ErrorClass = "endpoint_not_activated"
	ErrorGeneric              ErrorClass = "generic"
)

// SubmissionError is a classified webhook failure. Message is safe to show
// to the visitor; Detail carries the underlying cause for the event log.
type SubmissionError struct {
	Class     ErrorClass `json:"class"`
	Message   string     `json:"message"`
	Detail    string     `json:"detail,omitempty"`
	Retryable bool       `json:"retryable"`
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Detail)
}

// WebhookClient posts completed submissions to the intake webhook
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Submit posts the payload and returns the webhook's acknowledgment. A 2xx
// response with an empty or non-JSON body still counts as accepted and
// yields a synthesized ack. Failures come back classified so the caller
// can tell the visitor whether retrying is worthwhile.
func (c *WebhookClient) Submit(ctx context.Context, payload SubmissionPayload) (map[string]interface{}, *SubmissionError) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SubmissionError{
			Class:   ErrorGeneric,
			Message: "Something went wrong preparing your submission. Please try again.",
			Detail:  err.Error(),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &SubmissionError{
			Class:   ErrorGeneric,
			Message: "Something went wrong preparing your submission. Please try again.",
			Detail:  err.Error(),
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SubmissionError{
			Class:     ErrorConnectivity,
			Message:   "Unable to reach the submission service. Please check your connection and try again.",
			Detail:    err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		var ack map[string]interface{}
		if err := json.Unmarshal(respBody, &ack); err != nil || ack == nil {
			// the workflow engine often replies with an empty body
			ack = map[string]interface{}{"status": "received"}
		}
		return ack, nil
	}

	return nil, classifyStatus(resp.StatusCode, respBody)
}

func classifyStatus(status int, body []byte) *SubmissionError {
	detail := fmt.Sprintf("webhook returned %d: %s", status, string(body))

	switch status {
	case http.StatusNotFound:
		return &SubmissionError{
			Class:     ErrorEndpointNotActivated,
			Message:   "The submission endpoint is not activated. Please try again in a moment.",
			Detail:    detail,
			Retryable: true,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &SubmissionError{
			Class:   ErrorBlocked,
			Message: "Your submission was blocked. Please contact support if this keeps happening.",
			Detail:  detail,
		}
	default:
		return &SubmissionError{
			Class:     ErrorGeneric,
			Message:   "Something went wrong submitting your answers. Please try again.",
			Detail:    detail,
			Retryable: true,
		}
	}
}
