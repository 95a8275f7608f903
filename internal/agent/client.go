// Package agent creates realtime voice-agent sessions on the backend and
// owns the prompt/voice material the sessions are configured with.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-bridge/internal/observability"
)

// Client talks to the voice-agent REST API to create serverWebSocket calls.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	sampleRate int
	bufferMs   int
	httpClient *http.Client
	logger     *observability.Logger
}

func New(apiKey, baseURL, model string, sampleRate, bufferMs int, logger *observability.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		sampleRate: sampleRate,
		bufferMs:   bufferMs,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCallParams describes one agent session.
type CreateCallParams struct {
	SystemPrompt string
	FirstMessage string
	CallerNumber string
	Voice        string
}

type createCallRequest struct {
	SystemPrompt    string           `json:"systemPrompt"`
	Model           string           `json:"model"`
	Voice           string           `json:"voice"`
	Temperature     float64          `json:"temperature"`
	InitialMessages []initialMessage `json:"initialMessages"`
	Medium          medium           `json:"medium"`
	VADSettings     vadSettings      `json:"vadSettings"`
	SelectedTools   []selectedTool   `json:"selectedTools"`
}

type initialMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type medium struct {
	ServerWebSocket serverWebSocket `json:"serverWebSocket"`
}

type serverWebSocket struct {
	InputSampleRate    int `json:"inputSampleRate"`
	OutputSampleRate   int `json:"outputSampleRate"`
	ClientBufferSizeMs int `json:"clientBufferSizeMs"`
}

type vadSettings struct {
	TurnEndpointDelay           string `json:"turnEndpointDelay"`
	MinimumTurnDuration         string `json:"minimumTurnDuration"`
	MinimumInterruptionDuration string `json:"minimumInterruptionDuration"`
}

type createCallResponse struct {
	JoinURL string `json:"joinUrl"`
}

// CreateCall registers a new agent session and returns the websocket join
// URL. An empty URL with a non-nil error means the call must be aborted; the
// bridge does not retry.
func (c *Client) CreateCall(ctx context.Context, p CreateCallParams) (string, error) {
	reqBody := createCallRequest{
		SystemPrompt: p.SystemPrompt,
		Model:        c.model,
		Voice:        p.Voice,
		Temperature:  0.1,
		InitialMessages: []initialMessage{
			{Role: "MESSAGE_ROLE_USER", Text: p.FirstMessage},
		},
		Medium: medium{
			ServerWebSocket: serverWebSocket{
				InputSampleRate:    c.sampleRate,
				OutputSampleRate:   c.sampleRate,
				ClientBufferSizeMs: c.bufferMs,
			},
		},
		VADSettings: vadSettings{
			TurnEndpointDelay:           "0.384s",
			MinimumTurnDuration:         "0s",
			MinimumInterruptionDuration: "0.09s",
		},
		SelectedTools: selectedTools(p.CallerNumber),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal agent call request: %w", err)
	}

	url := c.baseURL + "/api/calls"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create agent call request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent call request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read agent call response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn(ctx, fmt.Sprintf("Agent call creation returned status %d: %s", resp.StatusCode, respBody))
		return "", fmt.Errorf("agent call creation returned status %d", resp.StatusCode)
	}

	var parsed createCallResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse agent call response: %w", err)
	}
	if parsed.JoinURL == "" {
		return "", fmt.Errorf("agent call response carried no join url")
	}

	c.logger.Info(ctx, "Agent session created")
	return parsed.JoinURL, nil
}
