package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voice-bridge/internal/audio"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// agentEvent is one text frame on the agent connection. The discriminator is
// either "type" or "eventType" depending on the event family.
type agentEvent struct {
	Type         string         `json:"type"`
	EventType    string         `json:"eventType"`
	Role         string         `json:"role"`
	Text         string         `json:"text"`
	Delta        string         `json:"delta"`
	Final        bool           `json:"final"`
	State        string         `json:"state"`
	Message      string         `json:"message"`
	ToolName     string         `json:"toolName"`
	InvocationID string         `json:"invocationId"`
	Parameters   map[string]any `json:"parameters"`
}

// Named backend event families worth logging; everything else unknown is
// logged and ignored so new event types never break the loop.
var logEventTypes = map[string]struct{}{
	"response.content.done": {},
	"response.done":         {},
	"session.created":       {},
	"conversation.item.input_audio_transcription.completed": {},
}

// runAgentLoop reads the agent connection until it closes, an unrecoverable
// error occurs, or a tool handler requests hangup. Binary frames are audio
// for Twilio; text frames are control events.
func (b *Bridge) runAgentLoop(ctx context.Context, c *call) {
	defer func() {
		c.sess.SetAgentActive(false)
		c.teardown(ctx)
	}()

	for {
		if c.sess.HangingUp() {
			b.logger.Info(ctx, "Hangup requested, leaving agent loop")
			return
		}

		msgType, msg, err := c.agentConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Info(ctx, "Agent websocket closed normally")
			} else {
				b.logger.InfoWithError(ctx, "Agent websocket read ended", err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			b.forwardAgentAudio(ctx, c, msg)
			continue
		}

		var event agentEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			b.logger.InfoWithError(ctx, "Agent sent non-JSON text frame", err)
			continue
		}

		eventType := event.Type
		if eventType == "" {
			eventType = event.EventType
		}

		switch eventType {
		case "transcript":
			b.handleTranscript(ctx, c, event)

		case "client_tool_invocation":
			b.tools.Dispatch(ctx, Invocation{
				ToolName:     event.ToolName,
				InvocationID: event.InvocationID,
				Parameters:   event.Parameters,
			}, c.sess, &agentSocket{c: c})

		case "state":
			b.handleState(ctx, c, event)

		case "debug":
			b.handleDebug(ctx, event)

		case "playback_clear_buffer":
			// Frequent and uninteresting.

		default:
			if _, ok := logEventTypes[eventType]; ok {
				b.logger.Info(ctx, fmt.Sprintf("Agent event: %s", eventType))
			} else {
				b.logger.Debug(ctx, fmt.Sprintf("Unhandled agent event type: %q", eventType))
			}
		}
	}
}

// forwardAgentAudio re-encodes one PCM frame for Twilio. A transcode failure
// drops the frame; a send failure marks the telephony side inactive but keeps
// the loop reading, since the agent may still emit control events worth
// capturing.
func (b *Bridge) forwardAgentAudio(ctx context.Context, c *call, pcm []byte) {
	mulaw, err := audio.PCMToMuLaw(pcm)
	if err != nil {
		b.logger.InfoWithError(ctx, "Dropping agent audio frame", err)
		return
	}

	if !c.sess.TelephonyActive() {
		return
	}

	frame := mediaFrame{
		Event:     "media",
		StreamSid: c.sess.StreamSid(),
		Media:     mediaPayload{Payload: audio.EncodeBase64(mulaw)},
	}
	if err := c.sendTwilioJSON(frame); err != nil {
		b.logger.InfoWithError(ctx, "Failed to send media to Twilio", err)
		c.sess.SetTelephonyActive(false)
	}
}

// handleTranscript appends the fragment to the session transcript and runs
// the best-effort extraction heuristics over it.
func (b *Bridge) handleTranscript(ctx context.Context, c *call, event agentEvent) {
	text := event.Text
	if text == "" {
		text = event.Delta
	}
	if event.Role == "" || text == "" {
		return
	}

	role := capitalize(event.Role)
	c.sess.AppendTranscript(role, text)
	if event.Final {
		b.logger.Debug(ctx, fmt.Sprintf("%s transcript finalized", role))
	}

	if name, ok := ExtractName(text); ok {
		if c.sess.SetCallerName(name) {
			b.logger.Info(ctx, fmt.Sprintf("Caller name detected: %s", name))
		}
	}
	if email, ok := ExtractEmail(text); ok {
		if c.sess.SetCallerEmail(email) {
			b.logger.Info(ctx, "Caller email detected")
		}
	}

	if DetectBookingIntent(text) && c.sess.MarkRealtimeSent() {
		extra := map[string]any{
			"name":     c.sess.CallerName(),
			"email":    c.sess.CallerEmail(),
			"purpose":  text,
			"datetime": time.Now().UTC().Format(time.RFC3339),
			"calendar": "primary",
		}
		if _, err := b.tools.webhook.SendAction(ctx, "booking_intent", c.sess.CallSid, c.sess.CallerNumber(), extra); err != nil {
			b.logger.InfoWithError(ctx, "Booking-intent delivery failed", err)
		}
	}
}

// handleState triggers the returning-caller lookup once the agent reports
// readiness, so personalization starts without waiting for the agent to ask.
func (b *Bridge) handleState(ctx context.Context, c *call, event agentEvent) {
	b.logger.Debug(ctx, fmt.Sprintf("Agent state: %s", event.State))
	if event.State != "ready" && event.State != "listening" {
		return
	}
	if !c.sess.MarkGreetingSent() {
		return
	}

	b.tools.Dispatch(ctx, Invocation{
		ToolName:     "check_returning_user",
		InvocationID: uuid.New().String(),
		Parameters:   map[string]any{"caller_number": c.sess.CallerNumber()},
	}, c.sess, &agentSocket{c: c})
}

// handleDebug peeks inside debug events for nested tool results; anything
// unparseable is logged and dropped.
func (b *Bridge) handleDebug(ctx context.Context, event agentEvent) {
	var nested struct {
		Type     string `json:"type"`
		ToolName string `json:"toolName"`
		Output   string `json:"output"`
	}
	if err := json.Unmarshal([]byte(event.Message), &nested); err != nil {
		b.logger.Debug(ctx, fmt.Sprintf("Agent debug message is not nested JSON: %s", event.Message))
		return
	}
	if nested.Type == "toolResult" {
		b.logger.Info(ctx, fmt.Sprintf("Tool %q result: %s", nested.ToolName, nested.Output))
	} else {
		b.logger.Debug(ctx, fmt.Sprintf("Unhandled nested debug type: %s", nested.Type))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
