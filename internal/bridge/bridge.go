// Package bridge relays a live Twilio media stream to a realtime voice-agent
// websocket, transcoding audio in both directions and brokering the control
// events (transcripts, tool invocations, stage changes) that flow alongside
// it. One bridge serves the whole process; each accepted media stream gets
// its own pair of relay loops sharing a single session record.
package bridge

import (
	"context"
	"sync"
	"time"

	"voice-bridge/internal/agent"
	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"

	"github.com/gorilla/websocket"
)

const (
	// Agent-connection keepalive. The read deadline is pushed on every pong;
	// a missed pong kills the connection.
	pingPeriod = 20 * time.Second
	pongWait   = 30 * time.Second

	// Bounded close handshake before falling back to a forced close.
	closeTimeout = 3 * time.Second

	handshakeTimeout = 10 * time.Second
)

// AgentCaller creates an agent session and returns its websocket join URL.
type AgentCaller interface {
	CreateCall(ctx context.Context, p agent.CreateCallParams) (string, error)
}

// Bridge holds the dependencies shared by every call.
type Bridge struct {
	logger   *observability.Logger
	registry *session.Registry
	agent    AgentCaller
	tools    *ToolDispatcher
	voice    string
	dialer   *websocket.Dialer
}

func New(registry *session.Registry, agentCaller AgentCaller, tools *ToolDispatcher, voice string, logger *observability.Logger) *Bridge {
	return &Bridge{
		logger:   logger,
		registry: registry,
		agent:    agentCaller,
		tools:    tools,
		voice:    voice,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// call is the per-stream state shared by the two relay loops. Each socket has
// a single writer mutex; the session record carries everything else.
type call struct {
	bridge *Bridge
	sess   *session.Session

	twilioConn    *websocket.Conn
	twilioWriteMu sync.Mutex

	agentConn    *websocket.Conn
	agentWriteMu sync.Mutex

	teardownOnce sync.Once
	pingStop     chan struct{}
	wg           sync.WaitGroup
}

// sendTwilioJSON writes one text frame to the Twilio socket under the write
// mutex.
func (c *call) sendTwilioJSON(v any) error {
	c.twilioWriteMu.Lock()
	defer c.twilioWriteMu.Unlock()
	return c.twilioConn.WriteJSON(v)
}

// sendAgentBinary forwards one PCM frame to the agent socket under the write
// mutex.
func (c *call) sendAgentBinary(data []byte) error {
	c.agentWriteMu.Lock()
	defer c.agentWriteMu.Unlock()
	return c.agentConn.WriteMessage(websocket.BinaryMessage, data)
}

// agentSocket is the weak handle tool handlers get for replying on the agent
// connection. Liveness is the session's agentActive flag; never assume the
// connection is still there.
type agentSocket struct {
	c *call
}

func (a *agentSocket) WriteJSON(v any) error {
	a.c.agentWriteMu.Lock()
	defer a.c.agentWriteMu.Unlock()
	return a.c.agentConn.WriteJSON(v)
}

// Close requests a bounded close handshake on the agent connection.
func (a *agentSocket) Close() error {
	return a.c.closeAgentConn()
}

// closeAgentConn sends a close frame with a deadline, then forces the
// connection shut. Safe to call more than once and when the connection was
// never opened.
func (c *call) closeAgentConn() error {
	if c.agentConn == nil {
		return nil
	}
	c.sess.SetAgentActive(false)

	deadline := time.Now().Add(closeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.agentConn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil &&
		err != websocket.ErrCloseSent {
		// Close handshake failed; fall through to the forced close.
		c.bridge.logger.Debug(context.Background(), "Agent close handshake failed, forcing close")
	}
	return c.agentConn.Close()
}
