// Package telephony wraps the Twilio REST API for the two call-control
// operations the bridge needs: ending a live call and placing an outbound one.
package telephony

import (
	"context"
	"fmt"
	"strings"

	"voice-bridge/internal/observability"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// Client controls calls through the Twilio REST API.
type Client struct {
	rest       *twilio.RestClient
	fromNumber string
	logger     *observability.Logger
}

func NewClient(accountSid, authToken, fromNumber string, logger *observability.Logger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &Client{
		rest:       rest,
		fromNumber: fromNumber,
		logger:     logger,
	}
}

// EndCall marks the call completed, which drops the underlying media stream.
func (c *Client) EndCall(ctx context.Context, callSid string) error {
	callSid = NormalizeCallSid(callSid)
	if callSid == "" {
		return fmt.Errorf("invalid call sid")
	}

	params := &api.UpdateCallParams{}
	params.SetStatus("completed")

	if _, err := c.rest.Api.UpdateCall(callSid, params); err != nil {
		return fmt.Errorf("failed to end call %s: %w", callSid, err)
	}

	c.logger.Info(ctx, fmt.Sprintf("Ended Twilio call %s", callSid))
	return nil
}

// CreateCall places an outbound call that streams to the given TwiML.
func (c *Client) CreateCall(ctx context.Context, to, twimlDoc, statusCallback string) (string, error) {
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetTwiml(twimlDoc)
	if statusCallback != "" {
		params.SetStatusCallback(statusCallback)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}

	call, err := c.rest.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to create call to %s: %w", to, err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("twilio returned a call without a sid")
	}

	c.logger.Info(ctx, fmt.Sprintf("Created Twilio call %s", *call.Sid))
	return *call.Sid, nil
}

// NormalizeCallSid extracts the canonical 34-character CA token from a call
// SID that may carry surrounding noise. Returns the input unchanged when it
// already looks canonical, "" when no token can be found.
func NormalizeCallSid(callSid string) string {
	if len(callSid) == 34 && strings.HasPrefix(callSid, "CA") {
		return callSid
	}
	idx := strings.Index(callSid, "CA")
	if idx >= 0 && len(callSid) >= idx+34 {
		return callSid[idx : idx+34]
	}
	if callSid != "" && strings.HasPrefix(callSid, "CA") {
		return callSid
	}
	return ""
}
