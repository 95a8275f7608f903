package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"voice-bridge/internal/apierrors"
	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
)

// HandleIncomingCall answers Twilio's inbound-call webhook: fetch the
// greeting from the automation endpoint, pre-create the session the media
// stream will look up, and reply with TwiML that connects the call to our
// websocket.
func (h *Handler) HandleIncomingCall(c *gin.Context) {
	ctx := c.Request.Context()

	callerNumber := c.PostForm("From")
	if callerNumber == "" {
		callerNumber = "Unknown"
	}
	callSid := c.PostForm("CallSid")
	if callSid == "" {
		apierrors.BadRequest(c, "MISSING_CALL_SID", "CallSid form field is required")
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_sid", Value: callSid},
		observability.Field{Key: "caller_number", Value: callerNumber},
	)
	h.logger.Info(ctx, "Incoming call")

	firstMessage := h.fetchFirstMessage(ctx, callerNumber)

	sess := session.New(callSid, callerNumber, firstMessage)
	if !h.registry.Create(callSid, sess) {
		h.logger.Warn(ctx, "Session already registered for incoming call")
	}

	doc, err := h.streamTwiML(firstMessage, callerNumber, callSid)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, doc)
}

// fetchFirstMessage asks the automation endpoint for a personalized greeting
// (route 1); any failure falls back to the configured default.
func (h *Handler) fetchFirstMessage(ctx context.Context, callerNumber string) string {
	respBody, err := h.webhook.Send(ctx, map[string]any{
		"route":  1,
		"number": callerNumber,
		"data":   "empty",
	})
	if err != nil {
		h.logger.InfoWithError(ctx, "Greeting lookup failed, using default", err)
		return h.defaultFirstMessage
	}

	var parsed firstMessageResponse
	if err := json.Unmarshal([]byte(respBody), &parsed); err == nil && parsed.FirstMessage != "" {
		return parsed.FirstMessage
	}
	if trimmed := strings.TrimSpace(respBody); trimmed != "" {
		return trimmed
	}
	return h.defaultFirstMessage
}

// streamTwiML builds the <Connect><Stream> document pointing at our
// media-stream websocket, carrying the session parameters Twilio echoes back
// on stream start.
func (h *Handler) streamTwiML(firstMessage, callerNumber, callSid string) (string, error) {
	streamURL := h.mediaStreamURL()

	stream := twiml.VoiceStream{
		Url: streamURL,
	}
	stream.InnerElements = []twiml.Element{
		twiml.VoiceParameter{Name: "firstMessage", Value: firstMessage},
		twiml.VoiceParameter{Name: "callerNumber", Value: callerNumber},
		twiml.VoiceParameter{Name: "callSid", Value: callSid},
	}

	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	return twiml.Voice([]twiml.Element{connect})
}

func (h *Handler) mediaStreamURL() string {
	return strings.Replace(h.publicURL, "https", "wss", 1) + "/media-stream"
}

type outgoingCallRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	FirstMessage string `json:"firstMessage"`
}

// HandleOutgoingCall places an outbound call that streams back into the
// bridge once answered.
func (h *Handler) HandleOutgoingCall(c *gin.Context) {
	ctx := c.Request.Context()

	var req outgoingCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "INVALID_BODY", "request body must be JSON")
		return
	}
	if req.PhoneNumber == "" {
		apierrors.BadRequest(c, "MISSING_PHONE_NUMBER", "phoneNumber is required")
		return
	}
	if req.FirstMessage == "" {
		req.FirstMessage = h.defaultFirstMessage
	}

	h.logger.Info(ctx, fmt.Sprintf("Initiating outbound call to %s", req.PhoneNumber))

	doc, err := h.streamTwiML(req.FirstMessage, req.PhoneNumber, "")
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	callSid, err := h.telephony.CreateCall(ctx, req.PhoneNumber, doc, h.publicURL+"/call-status")
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	sess := session.New(callSid, req.PhoneNumber, req.FirstMessage)
	if !h.registry.Create(callSid, sess) {
		h.logger.Warn(ctx, "Session already registered for outbound call")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"callSid": callSid,
	})
}

// HandleCallStatus logs Twilio status callbacks.
func (h *Handler) HandleCallStatus(c *gin.Context) {
	ctx := observability.WithFields(c.Request.Context(),
		observability.Field{Key: "call_sid", Value: c.PostForm("CallSid")},
		observability.Field{Key: "call_status", Value: c.PostForm("CallStatus")},
		observability.Field{Key: "call_duration", Value: c.PostForm("CallDuration")},
	)
	h.logger.Info(ctx, "Twilio status update")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// firstMessageResponse is the route-1 webhook reply shape; plain-text bodies
// are accepted as the greeting itself.
type firstMessageResponse struct {
	FirstMessage string `json:"firstMessage"`
}
