package handler

import (
	"github.com/gin-gonic/gin"
)

// HandleMediaStream upgrades Twilio's stream connection and hands it to the
// bridge, which runs the relay loops for the life of the call.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	h.bridge.HandleMediaStream(ctx, conn)
}
