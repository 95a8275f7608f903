package bridge

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// teardown runs the end-of-call sequence exactly once, no matter how many
// paths reach it. Every step proceeds regardless of failures in the previous
// one, and the sequence is safe when the agent loop never started.
func (c *call) teardown(ctx context.Context) {
	c.teardownOnce.Do(func() {
		logger := c.bridge.logger
		logger.Info(ctx, "Tearing down call")

		c.sess.SetTelephonyActive(false)
		c.sess.SetAgentActive(false)

		c.stopKeepalive()
		c.closeTwilioConn()

		if c.agentConn != nil {
			if err := c.closeAgentConn(); err != nil {
				logger.InfoWithError(ctx, "Agent connection close during teardown", err)
			}
		}

		if c.sess.MarkTranscriptSent() {
			if err := c.bridge.tools.webhook.SendTranscript(ctx, c.sess); err != nil {
				logger.InfoWithError(ctx, "Transcript delivery failed during teardown", err)
			}
		}

		c.bridge.registry.Remove(c.sess.CallSid)
		logger.Info(ctx, "Call torn down, session removed")
	})
}

// startKeepalive pings the agent connection periodically and extends the
// read deadline on each pong; a silent connection is declared dead once the
// deadline lapses.
func (c *call) startKeepalive() {
	conn := c.agentConn
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-c.pingStop:
				return
			case <-ticker.C:
				deadline := time.Now().Add(closeTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()
}

func (c *call) stopKeepalive() {
	select {
	case <-c.pingStop:
	default:
		close(c.pingStop)
	}
}
