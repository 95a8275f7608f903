// Package webhook delivers call payloads to the automation endpoint. Two
// payload shapes exist: the end-of-call transcript and structured actions
// (bookings, returning-caller lookups). Delivery failures are retried a fixed
// number of times and then surfaced to the caller, who decides whether that
// matters; teardown never blocks on it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"
)

const (
	// DefaultRoute is used for transcript delivery when the session carries
	// no explicit route override.
	DefaultRoute = 2
	// ActionRoute is the route for structured action payloads.
	ActionRoute = 3

	maxAttempts = 3
)

// Client posts JSON payloads to the automation endpoint with bounded retry.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *observability.Logger
	retryDelay time.Duration
}

func New(url string, logger *observability.Logger) *Client {
	return &Client{
		url:    url,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelay: 1500 * time.Millisecond,
	}
}

// TranscriptPayload is the end-of-call delivery shape.
type TranscriptPayload struct {
	Route  int    `json:"route"`
	Number string `json:"number"`
	Data   string `json:"data"`
}

// Send posts the payload, retrying on transport errors and non-2xx responses
// up to maxAttempts with a fixed delay. On success it returns the response
// body; after exhaustion it returns the last error.
func (c *Client) Send(ctx context.Context, payload any) (string, error) {
	if c.url == "" {
		return "", fmt.Errorf("webhook url is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		respBody, err := c.post(ctx, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		c.logger.InfoWithError(ctx, fmt.Sprintf("Webhook attempt %d/%d failed", attempt, maxAttempts), err)

		if attempt < maxAttempts {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", fmt.Errorf("webhook unreachable after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return string(respBody), nil
}

// SendTranscript posts the full call transcript. The route comes from the
// session override when set, otherwise DefaultRoute. The caller must already
// hold the one-shot transcript claim on the session.
func (c *Client) SendTranscript(ctx context.Context, sess *session.Session) error {
	route := DefaultRoute
	if r, ok := sess.Route(); ok {
		route = r
	}

	payload := TranscriptPayload{
		Route:  route,
		Number: sess.CallerNumber(),
		Data:   sess.Transcript(),
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_sid", Value: sess.CallSid},
		observability.Field{Key: "route", Value: route},
	)
	c.logger.Info(ctx, "Delivering call transcript")

	if _, err := c.Send(ctx, payload); err != nil {
		return fmt.Errorf("transcript delivery failed: %w", err)
	}
	return nil
}

// SendAction posts a structured action payload, merging any extra fields into
// the body.
func (c *Client) SendAction(ctx context.Context, action, sessionID, callerNumber string, extra map[string]any) (string, error) {
	payload := map[string]any{
		"route":         ActionRoute,
		"action":        action,
		"session_id":    sessionID,
		"caller_number": callerNumber,
	}
	for k, v := range extra {
		payload[k] = v
	}

	c.logger.Info(ctx, fmt.Sprintf("Sending action %q to webhook", action))
	return c.Send(ctx, payload)
}
