package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeToolConn records every result frame and close request a handler issues,
// in order.
type fakeToolConn struct {
	mu       sync.Mutex
	results  []ToolResult
	ops      []string
	writeErr error
}

func (f *fakeToolConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.results = append(f.results, v.(ToolResult))
	f.ops = append(f.ops, "write")
	return nil
}

func (f *fakeToolConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "close")
	return nil
}

func (f *fakeToolConn) Results() []ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ToolResult(nil), f.results...)
}

func (f *fakeToolConn) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// fakeWebhook is a recording WebhookSender with canned responses.
type fakeWebhook struct {
	mu sync.Mutex

	sendResp string
	sendErr  error
	sends    []any

	actionResp string
	actionErr  error
	actions    []string

	transcriptErr   error
	transcriptCalls int
}

func (f *fakeWebhook) Send(ctx context.Context, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, payload)
	return f.sendResp, f.sendErr
}

func (f *fakeWebhook) SendTranscript(ctx context.Context, sess *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcriptCalls++
	return f.transcriptErr
}

func (f *fakeWebhook) SendAction(ctx context.Context, action, sessionID, callerNumber string, extra map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return f.actionResp, f.actionErr
}

func (f *fakeWebhook) TranscriptCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcriptCalls
}

func (f *fakeWebhook) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func (f *fakeWebhook) Sends() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sends...)
}

// fakeEnder records EndCall invocations.
type fakeEnder struct {
	mu   sync.Mutex
	sids []string
	err  error
}

func (f *fakeEnder) EndCall(ctx context.Context, callSid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sids = append(f.sids, callSid)
	return f.err
}

func (f *fakeEnder) Sids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sids...)
}

var testCalendars = map[string]string{
	"London":     "cal-london",
	"Manchester": "cal-manchester",
	"Brighton":   "cal-brighton",
}

func newTestDispatcher(w *fakeWebhook, e *fakeEnder) *ToolDispatcher {
	return NewToolDispatcher(w, e, testCalendars, "Tanya-English", observability.NewLogger())
}

func dispatch(d *ToolDispatcher, tool string, params map[string]any, sess *session.Session, conn ToolConn) {
	d.Dispatch(context.Background(), Invocation{
		ToolName:     tool,
		InvocationID: "inv-1",
		Parameters:   params,
	}, sess, conn)
}

func TestDispatch_UnknownTool(t *testing.T) {
	conn := &fakeToolConn{}
	d := newTestDispatcher(&fakeWebhook{}, &fakeEnder{})

	dispatch(d, "reboot_the_moon", nil, session.New("CA1", "+1555", ""), conn)

	results := conn.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "client_tool_result", results[0].Type)
	assert.Equal(t, "inv-1", results[0].InvocationID)
	assert.Equal(t, "unsupported-tool", results[0].ErrorType)
	assert.Contains(t, results[0].ErrorMessage, "reboot_the_moon")
	assert.Empty(t, results[0].Result)
}

func TestDispatch_Verify(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{
			name: "all fields present",
			params: map[string]any{
				"full_name":     "Jamie Smith",
				"date_of_birth": "1990-01-01",
				"policy_number": "POL-123",
			},
			want: "Confirmed",
		},
		{
			name: "missing field",
			params: map[string]any{
				"full_name":     "Jamie Smith",
				"policy_number": "POL-123",
			},
			want: "Not Confirmed",
		},
		{
			name:   "nil params",
			params: nil,
			want:   "Not Confirmed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeToolConn{}
			d := newTestDispatcher(&fakeWebhook{}, &fakeEnder{})

			dispatch(d, "verify", tt.params, session.New("CA1", "+1555", ""), conn)

			results := conn.Results()
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Result)
			assert.Equal(t, "tool-response", results[0].ResponseType)
		})
	}
}

func TestDispatch_ScheduleMeeting_MissingFields(t *testing.T) {
	conn := &fakeToolConn{}
	webhook := &fakeWebhook{}
	d := newTestDispatcher(webhook, &fakeEnder{})

	dispatch(d, "schedule_meeting", map[string]any{
		"name":  "Jamie",
		"email": "jamie@example.com",
	}, session.New("CA1", "+1555", ""), conn)

	results := conn.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "Please provide the following information to schedule your meeting: purpose, datetime, location.", results[0].Result)
	assert.Empty(t, webhook.Sends(), "incomplete bookings never reach the webhook")
}

func TestDispatch_ScheduleMeeting_UnknownLocation(t *testing.T) {
	conn := &fakeToolConn{}
	webhook := &fakeWebhook{}
	d := newTestDispatcher(webhook, &fakeEnder{})

	dispatch(d, "schedule_meeting", map[string]any{
		"name":     "Jamie",
		"email":    "jamie@example.com",
		"purpose":  "policy review",
		"datetime": "2026-09-01T10:00:00Z",
		"location": "Atlantis",
	}, session.New("CA1", "+1555", ""), conn)

	results := conn.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "booking_error", results[0].ErrorType)
	assert.Contains(t, results[0].ErrorMessage, "Atlantis")
	assert.Empty(t, webhook.Sends())
}

func TestDispatch_ScheduleMeeting_Success(t *testing.T) {
	conn := &fakeToolConn{}
	webhook := &fakeWebhook{sendResp: `{"message":"Booked for Tuesday at 10am."}`}
	d := newTestDispatcher(webhook, &fakeEnder{})

	dispatch(d, "schedule_meeting", map[string]any{
		"name":     "Jamie",
		"email":    "jamie@example.com",
		"purpose":  "policy review",
		"datetime": "2026-09-01T10:00:00Z",
		"location": "London",
	}, session.New("CA1", "+15551234567", ""), conn)

	sends := webhook.Sends()
	require.Len(t, sends, 1)
	payload := sends[0].(map[string]any)
	assert.Equal(t, webhookActionRoute, payload["route"])
	assert.Equal(t, "+15551234567", payload["number"])

	var booking map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload["data"].(string)), &booking))
	assert.Equal(t, "cal-london", booking["calendar_id"])
	assert.Equal(t, "Jamie", booking["name"])

	results := conn.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "Booked for Tuesday at 10am.", results[0].Result)
}

func TestDispatch_ScheduleMeeting_WebhookFailure(t *testing.T) {
	conn := &fakeToolConn{}
	webhook := &fakeWebhook{sendErr: errors.New("unreachable")}
	d := newTestDispatcher(webhook, &fakeEnder{})

	dispatch(d, "schedule_meeting", map[string]any{
		"name":     "Jamie",
		"email":    "jamie@example.com",
		"purpose":  "policy review",
		"datetime": "2026-09-01T10:00:00Z",
		"location": "Brighton",
	}, session.New("CA1", "+1555", ""), conn)

	results := conn.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "booking_error", results[0].ErrorType)
}

func TestDispatch_StageTransitions(t *testing.T) {
	tests := []struct {
		name         string
		tool         string
		params       map[string]any
		wantVoice    string
		wantGreeting string
	}{
		{
			name: "escalate to manager",
			tool: "escalate_to_manager",
			params: map[string]any{
				"issue_type":    "refund_request",
				"customer_name": "Jamie",
			},
			wantVoice:    "Mark-English",
			wantGreeting: "refund request",
		},
		{
			name:         "move to call summary",
			tool:         "move_to_call_summary",
			wantVoice:    "Tanya-English",
			wantGreeting: "summarize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeToolConn{}
			d := newTestDispatcher(&fakeWebhook{}, &fakeEnder{})

			dispatch(d, tt.tool, tt.params, session.New("CA1", "+1555", ""), conn)

			results := conn.Results()
			require.Len(t, results, 1)
			assert.Equal(t, "new-stage", results[0].ResponseType)

			var stage struct {
				SystemPrompt   string `json:"systemPrompt"`
				Voice          string `json:"voice"`
				ToolResultText string `json:"toolResultText"`
			}
			require.NoError(t, json.Unmarshal([]byte(results[0].Result), &stage))
			assert.NotEmpty(t, stage.SystemPrompt)
			assert.Equal(t, tt.wantVoice, stage.Voice)
			assert.Contains(t, stage.ToolResultText, tt.wantGreeting)
		})
	}
}

func TestDispatch_CheckReturningUser(t *testing.T) {
	tests := []struct {
		name       string
		actionResp string
		actionErr  error
		want       string
	}{
		{
			name:       "known caller",
			actionResp: `{"firstMessage":"Welcome back, Jamie!"}`,
			want:       "Welcome back, Jamie!",
		},
		{
			name:       "message field fallback",
			actionResp: `{"message":"Hello again"}`,
			want:       "Hello again",
		},
		{
			name:      "lookup failure falls back",
			actionErr: errors.New("unreachable"),
			want:      "Welcome! How can I help you today?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeToolConn{}
			webhook := &fakeWebhook{actionResp: tt.actionResp, actionErr: tt.actionErr}
			d := newTestDispatcher(webhook, &fakeEnder{})

			dispatch(d, "check_returning_user", map[string]any{"caller_number": "+1555"},
				session.New("CA1", "+1555", ""), conn)

			results := conn.Results()
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Result)
			assert.Equal(t, []string{"check_returning_user"}, webhook.Actions())
		})
	}
}

func TestDispatch_HangUp(t *testing.T) {
	conn := &fakeToolConn{}
	webhook := &fakeWebhook{}
	ender := &fakeEnder{}
	d := newTestDispatcher(webhook, ender)
	sess := session.New("CA1", "+1555", "")

	dispatch(d, "hangUp", nil, sess, conn)

	// The success reply must go out before anything is closed.
	assert.Equal(t, []string{"write", "close"}, conn.Ops())

	results := conn.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "Call ended successfully", results[0].Result)

	assert.True(t, sess.HangingUp())
	assert.Equal(t, []string{"CA1"}, ender.Sids())
	assert.Equal(t, 1, webhook.TranscriptCalls())
}

func TestDispatch_HangUp_TranscriptAlreadyClaimed(t *testing.T) {
	conn := &fakeToolConn{}
	webhook := &fakeWebhook{}
	d := newTestDispatcher(webhook, &fakeEnder{})
	sess := session.New("CA1", "+1555", "")
	require.True(t, sess.MarkTranscriptSent())

	dispatch(d, "hangUp", nil, sess, conn)

	assert.Equal(t, 0, webhook.TranscriptCalls(), "a claimed transcript must never be sent twice")
}

func TestDispatch_QuestionAndAnswer(t *testing.T) {
	conn := &fakeToolConn{}
	d := newTestDispatcher(&fakeWebhook{}, &fakeEnder{})

	dispatch(d, "question_and_answer", map[string]any{"question": "what are your hours?"},
		session.New("CA1", "+1555", ""), conn)

	results := conn.Results()
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Result)
	assert.Equal(t, "tool-response", results[0].ResponseType)
}
