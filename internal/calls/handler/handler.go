package handler

import (
	"net/http"

	"voice-bridge/internal/bridge"
	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/webhook"

	"github.com/gorilla/websocket"
)

type Handler struct {
	registry            *session.Registry
	bridge              *bridge.Bridge
	webhook             *webhook.Client
	telephony           *telephony.Client
	publicURL           string
	defaultFirstMessage string
	logger              *observability.Logger
}

func New(registry *session.Registry, b *bridge.Bridge, webhookClient *webhook.Client,
	telephonyClient *telephony.Client, publicURL, defaultFirstMessage string,
	logger *observability.Logger) Handler {
	return Handler{
		registry:            registry,
		bridge:              b,
		webhook:             webhookClient,
		telephony:           telephonyClient,
		publicURL:           publicURL,
		defaultFirstMessage: defaultFirstMessage,
		logger:              logger,
	}
}

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Twilio media streams carry no browser origin.
		return true
	},
}
