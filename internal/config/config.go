package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Twilio  TwilioConfig
	Agent   AgentConfig
	Webhook WebhookConfig
	Server  ServerConfig
}

// TwilioConfig holds telephony provider credentials
type TwilioConfig struct {
	AccountSid  string
	AuthToken   string
	PhoneNumber string
}

// AgentConfig holds voice-agent backend settings
type AgentConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	SampleRate int
	BufferMs   int
}

// WebhookConfig holds automation webhook settings
type WebhookConfig struct {
	URL string
	// Calendars maps a spoken meeting location to its calendar identifier.
	Calendars map[string]string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	// PublicURL is the externally reachable base URL, used to build the
	// wss:// media-stream address handed to Twilio.
	PublicURL string
	// DefaultFirstMessage greets the caller when the webhook offers none.
	DefaultFirstMessage string
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	var err error
	if cfg.Twilio.AccountSid, err = requireEnv("TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if cfg.Twilio.AuthToken, err = requireEnv("TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Twilio.PhoneNumber, err = requireEnv("TWILIO_PHONE_NUMBER"); err != nil {
		return nil, err
	}

	if cfg.Agent.APIKey, err = requireEnv("AGENT_API_KEY"); err != nil {
		return nil, err
	}
	cfg.Agent.BaseURL = getEnvWithDefault("AGENT_BASE_URL", "https://api.ultravox.ai")
	cfg.Agent.Model = getEnvWithDefault("AGENT_MODEL", "fixie-ai/ultravox-70B")
	cfg.Agent.Voice = getEnvWithDefault("AGENT_VOICE", "Tanya-English")

	sampleRate := getEnvWithDefault("AGENT_SAMPLE_RATE", "8000")
	cfg.Agent.SampleRate, err = strconv.Atoi(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AGENT_SAMPLE_RATE: %w", err)
	}

	bufferMs := getEnvWithDefault("AGENT_BUFFER_MS", "60")
	cfg.Agent.BufferMs, err = strconv.Atoi(bufferMs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AGENT_BUFFER_MS: %w", err)
	}

	if cfg.Webhook.URL, err = requireEnv("AUTOMATION_WEBHOOK_URL"); err != nil {
		return nil, err
	}
	cfg.Webhook.Calendars = map[string]string{
		"London":     getEnvWithDefault("CALENDAR_LONDON", "london@calendar.local"),
		"Manchester": getEnvWithDefault("CALENDAR_MANCHESTER", "manchester@calendar.local"),
		"Brighton":   getEnvWithDefault("CALENDAR_BRIGHTON", "brighton@calendar.local"),
	}

	if cfg.Server.PublicURL, err = requireEnv("PUBLIC_URL"); err != nil {
		return nil, err
	}
	cfg.Server.DefaultFirstMessage = getEnvWithDefault("DEFAULT_FIRST_MESSAGE",
		"Hey, this is Sarah. How can I assist you today?")

	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
