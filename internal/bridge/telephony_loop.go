package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"voice-bridge/internal/agent"
	"voice-bridge/internal/audio"
	"voice-bridge/internal/observability"

	"github.com/gorilla/websocket"
)

// twilioEvent is one control frame on the Twilio media stream.
type twilioEvent struct {
	Event string `json:"event"`
	Start struct {
		StreamSid        string            `json:"streamSid"`
		CallSid          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Stop struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"stop,omitempty"`
}

// mediaFrame is the outbound audio frame shape Twilio expects.
type mediaFrame struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// HandleMediaStream runs the Twilio-side relay loop on the given websocket
// until the stream stops or the connection drops. It owns session lookup and
// agent-connection setup; the agent-side loop runs as its own goroutine once
// the connection exists. Teardown runs exactly once regardless of which side
// terminates first.
func (b *Bridge) HandleMediaStream(ctx context.Context, conn *websocket.Conn) {
	c := &call{
		bridge:     b,
		twilioConn: conn,
		pingStop:   make(chan struct{}),
	}

	b.logger.Info(ctx, "Twilio media stream connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Info(ctx, "Twilio websocket closed normally")
			} else {
				b.logger.InfoWithError(ctx, "Twilio websocket read ended", err)
			}
			break
		}

		var event twilioEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			b.logger.InfoWithError(ctx, "Failed to parse Twilio event", err)
			continue
		}

		switch event.Event {
		case "start":
			if ok := b.handleStart(ctx, c, event); !ok {
				// Fatal per-call setup failure. Close the telephony socket
				// and stop; no agent connection exists yet.
				c.closeTwilioConn()
				if c.sess != nil {
					c.teardown(ctx)
				}
				return
			}
			ctx = observability.WithFields(ctx,
				observability.Field{Key: "call_sid", Value: c.sess.CallSid},
				observability.Field{Key: "stream_sid", Value: c.sess.StreamSid()},
			)

		case "media":
			b.handleMedia(ctx, c, event)

		case "stop":
			b.logger.Info(ctx, fmt.Sprintf("Twilio stream stopped: %s", event.Stop.StreamSid))
			if c.sess != nil {
				c.sess.SetTelephonyActive(false)
				c.teardown(ctx)
			}
			c.wg.Wait()
			return

		default:
			b.logger.Debug(ctx, fmt.Sprintf("Ignoring Twilio event: %s", event.Event))
		}
	}

	// Disconnect without a stop frame.
	if c.sess != nil {
		c.sess.SetTelephonyActive(false)
		c.teardown(ctx)
	}
	c.wg.Wait()
}

// handleStart looks up the session, creates the agent session and opens the
// agent websocket. A false return aborts the call; setup failures are never
// retried.
func (b *Bridge) handleStart(ctx context.Context, c *call, event twilioEvent) bool {
	callSid := event.Start.CallSid
	streamSid := event.Start.StreamSid
	firstMessage := event.Start.CustomParameters["firstMessage"]
	callerNumber := event.Start.CustomParameters["callerNumber"]
	if callerNumber == "" {
		callerNumber = "Unknown"
	}

	sess, ok := b.registry.Get(callSid)
	if !ok {
		b.logger.Warn(ctx, fmt.Sprintf("No session registered for CallSid %s, aborting stream", callSid))
		return false
	}
	c.sess = sess

	sess.SetStreamSid(streamSid)
	sess.SetCallerNumber(callerNumber)
	if firstMessage != "" {
		sess.SetFirstMessage(firstMessage)
	}
	sess.ResetTranscript()
	sess.SetTelephonyActive(true)

	b.logger.Info(ctx, fmt.Sprintf("Twilio stream started: call=%s stream=%s caller=%s", callSid, streamSid, callerNumber))

	joinURL, err := b.agent.CreateCall(ctx, agent.CreateCallParams{
		SystemPrompt: agent.SystemPrompt(),
		FirstMessage: sess.FirstMessage(),
		CallerNumber: sess.CallerNumber(),
		Voice:        b.voice,
	})
	if err != nil || joinURL == "" {
		b.logger.InfoWithError(ctx, "Agent session creation failed, aborting call", err)
		return false
	}

	agentConn, resp, err := b.dialer.DialContext(ctx, joinURL, http.Header{})
	if err != nil {
		b.logger.InfoWithError(ctx, "Failed to open agent websocket", err)
		return false
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.agentConn = agentConn
	sess.SetAgentActive(true)

	c.startKeepalive()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		b.runAgentLoop(ctx, c)
	}()

	return true
}

// handleMedia decodes one inbound audio frame and forwards it to the agent.
// Frame-level failures drop the frame and keep the loop alive.
func (b *Bridge) handleMedia(ctx context.Context, c *call, event twilioEvent) {
	if c.sess == nil {
		return
	}

	mulaw, err := audio.DecodeBase64(event.Media.Payload)
	if err != nil {
		b.logger.InfoWithError(ctx, "Dropping media frame: bad base64 payload", err)
		return
	}

	pcm := audio.MuLawToPCM(mulaw)

	if !c.sess.AgentActive() || c.agentConn == nil {
		return
	}
	if err := c.sendAgentBinary(pcm); err != nil {
		b.logger.InfoWithError(ctx, "Failed to forward audio to agent", err)
		c.sess.SetAgentActive(false)
	}
}

// closeTwilioConn sends a close frame and shuts the telephony socket.
func (c *call) closeTwilioConn() {
	c.twilioWriteMu.Lock()
	c.twilioConn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.twilioWriteMu.Unlock()
	c.twilioConn.Close()
}
