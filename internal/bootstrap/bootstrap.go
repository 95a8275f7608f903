package bootstrap

import (
	"context"

	"voice-bridge/internal/agent"
	"voice-bridge/internal/bridge"
	callsHandler "voice-bridge/internal/calls/handler"
	"voice-bridge/internal/config"
	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/webhook"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	Logger   *observability.Logger
	Registry *session.Registry

	CallsHandler callsHandler.Handler
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	registry := session.NewRegistry()

	webhookClient := webhook.New(cfg.Webhook.URL, logger)

	telephonyClient := telephony.NewClient(
		cfg.Twilio.AccountSid,
		cfg.Twilio.AuthToken,
		cfg.Twilio.PhoneNumber,
		logger,
	)

	agentClient := agent.New(
		cfg.Agent.APIKey,
		cfg.Agent.BaseURL,
		cfg.Agent.Model,
		cfg.Agent.SampleRate,
		cfg.Agent.BufferMs,
		logger,
	)

	tools := bridge.NewToolDispatcher(webhookClient, telephonyClient, cfg.Webhook.Calendars, cfg.Agent.Voice, logger)
	callBridge := bridge.New(registry, agentClient, tools, cfg.Agent.Voice, logger)

	deps := &Dependencies{
		Logger:   logger,
		Registry: registry,
		CallsHandler: callsHandler.New(
			registry,
			callBridge,
			webhookClient,
			telephonyClient,
			cfg.Server.PublicURL,
			cfg.Server.DefaultFirstMessage,
			logger,
		),
	}

	logger.Info(ctx, "Dependencies initialized")
	return deps, nil
}
