package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voice-bridge/internal/agent"
	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"
)

// ToolConn is the weak agent-connection handle a handler replies on.
type ToolConn interface {
	WriteJSON(v any) error
	Close() error
}

// WebhookSender delivers payloads to the automation endpoint.
type WebhookSender interface {
	Send(ctx context.Context, payload any) (string, error)
	SendTranscript(ctx context.Context, sess *session.Session) error
	SendAction(ctx context.Context, action, sessionID, callerNumber string, extra map[string]any) (string, error)
}

// CallEnder terminates the underlying telephone call.
type CallEnder interface {
	EndCall(ctx context.Context, callSid string) error
}

// Invocation is one client tool call from the agent.
type Invocation struct {
	ToolName     string
	InvocationID string
	Parameters   map[string]any
}

// ToolResult is the single reply every invocation gets, success or failure,
// tagged with the originating invocation id.
type ToolResult struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocationId"`
	Result       string `json:"result,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
}

const (
	responseTypeTool  = "tool-response"
	responseTypeStage = "new-stage"

	// Route tag for structured booking deliveries.
	webhookActionRoute = 3
)

// ToolDispatcher maps tool names to handlers. The contract: every dispatched
// invocation sends exactly one result frame, including unknown tools and
// handler failures.
type ToolDispatcher struct {
	logger    *observability.Logger
	webhook   WebhookSender
	telephony CallEnder
	calendars map[string]string
	voice     string
}

func NewToolDispatcher(webhook WebhookSender, telephony CallEnder, calendars map[string]string, voice string, logger *observability.Logger) *ToolDispatcher {
	return &ToolDispatcher{
		logger:    logger,
		webhook:   webhook,
		telephony: telephony,
		calendars: calendars,
		voice:     voice,
	}
}

// Dispatch routes one invocation to its handler.
func (d *ToolDispatcher) Dispatch(ctx context.Context, inv Invocation, sess *session.Session, conn ToolConn) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "tool", Value: inv.ToolName},
		observability.Field{Key: "invocation_id", Value: inv.InvocationID},
	)
	d.logger.Info(ctx, "Dispatching tool invocation")

	switch inv.ToolName {
	case "verify":
		d.handleVerify(ctx, inv, conn)
	case "question_and_answer":
		d.reply(ctx, conn, ToolResult{
			Type:         "client_tool_result",
			InvocationID: inv.InvocationID,
			Result:       "Sorry, I cannot answer that question right now.",
			ResponseType: responseTypeTool,
		})
	case "schedule_meeting":
		d.handleScheduleMeeting(ctx, inv, sess, conn)
	case "escalate_to_manager":
		d.handleStageTransition(ctx, inv, conn, "manager", managerGreeting(inv.Parameters))
	case "move_to_call_summary":
		d.handleStageTransition(ctx, inv, conn, "call_summary",
			"Before we conclude our call, let me summarize what we've discussed and next steps.")
	case "check_returning_user":
		d.handleCheckReturningUser(ctx, inv, sess, conn)
	case "hangUp":
		d.handleHangUp(ctx, inv, sess, conn)
	default:
		d.logger.Warn(ctx, fmt.Sprintf("Unsupported tool requested: %q", inv.ToolName))
		d.reply(ctx, conn, ToolResult{
			Type:         "client_tool_result",
			InvocationID: inv.InvocationID,
			ErrorType:    "unsupported-tool",
			ErrorMessage: fmt.Sprintf("Tool %q is not supported.", inv.ToolName),
		})
	}
}

// reply sends the single result frame; a failed write is logged, never
// retried (the connection owner will notice the failure on its own).
func (d *ToolDispatcher) reply(ctx context.Context, conn ToolConn, result ToolResult) {
	if err := conn.WriteJSON(result); err != nil {
		d.logger.InfoWithError(ctx, "Failed to send tool result", err)
	}
}

// handleVerify confirms identity iff every field is present. A stand-in
// policy; a real deployment checks a system of record.
func (d *ToolDispatcher) handleVerify(ctx context.Context, inv Invocation, conn ToolConn) {
	fullName := strParam(inv.Parameters, "full_name")
	dateOfBirth := strParam(inv.Parameters, "date_of_birth")
	policyNumber := strParam(inv.Parameters, "policy_number")

	result := "Not Confirmed"
	if fullName != "" && dateOfBirth != "" && policyNumber != "" {
		result = "Confirmed"
	}
	d.logger.Info(ctx, fmt.Sprintf("Identity verification: %s", result))

	d.reply(ctx, conn, ToolResult{
		Type:         "client_tool_result",
		InvocationID: inv.InvocationID,
		Result:       result,
		ResponseType: responseTypeTool,
	})
}

// handleScheduleMeeting validates the booking fields, posts the booking to
// the automation webhook and relays its confirmation message. Missing fields
// produce a prompt naming exactly what is missing, not a hard failure.
func (d *ToolDispatcher) handleScheduleMeeting(ctx context.Context, inv Invocation, sess *session.Session, conn ToolConn) {
	required := []string{"name", "email", "purpose", "datetime", "location"}
	var missing []string
	for _, key := range required {
		if strParam(inv.Parameters, key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		d.reply(ctx, conn, ToolResult{
			Type:         "client_tool_result",
			InvocationID: inv.InvocationID,
			Result:       fmt.Sprintf("Please provide the following information to schedule your meeting: %s.", strings.Join(missing, ", ")),
			ResponseType: responseTypeTool,
		})
		return
	}

	location := strParam(inv.Parameters, "location")
	calendarID, ok := d.calendars[location]
	if !ok {
		d.reply(ctx, conn, ToolResult{
			Type:         "client_tool_result",
			InvocationID: inv.InvocationID,
			ErrorType:    "booking_error",
			ErrorMessage: fmt.Sprintf("Meetings cannot be booked at %q.", location),
		})
		return
	}

	booking := map[string]string{
		"name":        strParam(inv.Parameters, "name"),
		"email":       strParam(inv.Parameters, "email"),
		"purpose":     strParam(inv.Parameters, "purpose"),
		"datetime":    strParam(inv.Parameters, "datetime"),
		"calendar_id": calendarID,
	}
	data, err := json.Marshal(booking)
	if err != nil {
		d.replyBookingError(ctx, inv, conn)
		return
	}

	callerNumber := "Unknown"
	if sess != nil {
		callerNumber = sess.CallerNumber()
	}

	respBody, err := d.webhook.Send(ctx, map[string]any{
		"route":  webhookActionRoute,
		"number": callerNumber,
		"data":   string(data),
	})
	if err != nil {
		d.logger.InfoWithError(ctx, "Booking delivery failed", err)
		d.replyBookingError(ctx, inv, conn)
		return
	}

	message := "Booking confirmed."
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(respBody), &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
	}

	d.reply(ctx, conn, ToolResult{
		Type:         "client_tool_result",
		InvocationID: inv.InvocationID,
		Result:       message,
		ResponseType: responseTypeTool,
	})
}

func (d *ToolDispatcher) replyBookingError(ctx context.Context, inv Invocation, conn ToolConn) {
	d.reply(ctx, conn, ToolResult{
		Type:         "client_tool_result",
		InvocationID: inv.InvocationID,
		ErrorType:    "booking_error",
		ErrorMessage: "Calendar booking failed due to a server error.",
	})
}

// handleStageTransition replies with a new system prompt and voice, telling
// the agent to swap its operating mode. Audio routing is untouched.
func (d *ToolDispatcher) handleStageTransition(ctx context.Context, inv Invocation, conn ToolConn, stage, greeting string) {
	payload, err := json.Marshal(map[string]string{
		"systemPrompt":   agent.StagePrompt(stage),
		"voice":          agent.StageVoice(stage, d.voice),
		"toolResultText": greeting,
	})
	if err != nil {
		d.reply(ctx, conn, ToolResult{
			Type:         "client_tool_result",
			InvocationID: inv.InvocationID,
			ErrorType:    "implementation-error",
			ErrorMessage: "Stage transition failed.",
		})
		return
	}

	d.logger.Info(ctx, fmt.Sprintf("Transitioning to stage %q", stage))
	d.reply(ctx, conn, ToolResult{
		Type:         "client_tool_result",
		InvocationID: inv.InvocationID,
		Result:       string(payload),
		ResponseType: responseTypeStage,
	})
}

// handleCheckReturningUser asks the automation endpoint whether the caller is
// known and relays a personalized greeting if so.
func (d *ToolDispatcher) handleCheckReturningUser(ctx context.Context, inv Invocation, sess *session.Session, conn ToolConn) {
	callerNumber := strParam(inv.Parameters, "caller_number")
	if callerNumber == "" && sess != nil {
		callerNumber = sess.CallerNumber()
	}

	sessionID := ""
	if sess != nil {
		sessionID = sess.CallSid
	}

	greeting := "Welcome! How can I help you today?"
	respBody, err := d.webhook.SendAction(ctx, "check_returning_user", sessionID, callerNumber, nil)
	if err != nil {
		d.logger.InfoWithError(ctx, "Returning-caller lookup failed", err)
	} else {
		var parsed struct {
			FirstMessage string `json:"firstMessage"`
			Message      string `json:"message"`
		}
		if err := json.Unmarshal([]byte(respBody), &parsed); err == nil {
			if parsed.FirstMessage != "" {
				greeting = parsed.FirstMessage
			} else if parsed.Message != "" {
				greeting = parsed.Message
			}
		}
	}

	d.reply(ctx, conn, ToolResult{
		Type:         "client_tool_result",
		InvocationID: inv.InvocationID,
		Result:       greeting,
		ResponseType: responseTypeTool,
	})
}

// handleHangUp stops the call. The success reply goes out first, while the
// connection is still known open; then the telephone call is ended, the
// transcript delivered if still pending, and the agent connection asked to
// close. The session stays registered for the teardown coordinator.
func (d *ToolDispatcher) handleHangUp(ctx context.Context, inv Invocation, sess *session.Session, conn ToolConn) {
	if sess != nil {
		sess.RequestHangup()
	}

	d.reply(ctx, conn, ToolResult{
		Type:         "client_tool_result",
		InvocationID: inv.InvocationID,
		Result:       "Call ended successfully",
		ResponseType: responseTypeTool,
	})

	if sess == nil {
		return
	}

	if err := d.telephony.EndCall(ctx, sess.CallSid); err != nil {
		d.logger.InfoWithError(ctx, "Failed to end telephone call", err)
	}

	if sess.MarkTranscriptSent() {
		if err := d.webhook.SendTranscript(ctx, sess); err != nil {
			d.logger.InfoWithError(ctx, "Transcript delivery failed", err)
		}
	}

	if err := conn.Close(); err != nil {
		d.logger.InfoWithError(ctx, "Agent connection close failed", err)
	}
}

func managerGreeting(params map[string]any) string {
	issueType := strParam(params, "issue_type")
	customerName := strParam(params, "customer_name")

	greeting := "You're now speaking with Alex, the senior manager. I've been briefed on your situation"
	if customerName != "" {
		greeting += ", " + customerName
	}
	greeting += "."
	if issueType != "" {
		greeting += fmt.Sprintf(" You're concerned about %s.", strings.ReplaceAll(issueType, "_", " "))
	}
	greeting += " How can I help you today?"
	return greeting
}

func strParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
