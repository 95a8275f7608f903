package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := New(url, observability.NewLogger())
	c.retryDelay = time.Millisecond
	return c
}

func TestSend_Success(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Send(context.Background(), map[string]any{"route": 1, "number": "+15551234567"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, float64(1), payload["route"])
	assert.Equal(t, "+15551234567", payload["number"])
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Send(context.Background(), map[string]any{"route": 2})
	require.NoError(t, err)
	assert.Equal(t, "finally", resp)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestSend_GivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Send(context.Background(), map[string]any{"route": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestSend_ContextCancelledBetweenAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.retryDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Send(ctx, map[string]any{"route": 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_UnconfiguredURL(t *testing.T) {
	c := newTestClient("")
	_, err := c.Send(context.Background(), map[string]any{"route": 1})
	assert.Error(t, err)
}

func TestSendTranscript(t *testing.T) {
	tests := []struct {
		name      string
		route     *int
		wantRoute int
	}{
		{name: "default route", route: nil, wantRoute: DefaultRoute},
		{name: "session override", route: intPtr(7), wantRoute: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TranscriptPayload
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				require.NoError(t, json.Unmarshal(body, &got))
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			sess := session.New("CA123", "+15551234567", "")
			sess.AppendTranscript("Agent", "Hello")
			sess.AppendTranscript("User", "Hi there")
			if tt.route != nil {
				sess.SetRoute(*tt.route)
			}

			c := newTestClient(srv.URL)
			require.NoError(t, c.SendTranscript(context.Background(), sess))

			assert.Equal(t, tt.wantRoute, got.Route)
			assert.Equal(t, "+15551234567", got.Number)
			assert.Equal(t, "Agent: Hello\nUser: Hi there\n", got.Data)
		})
	}
}

func TestSendAction(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"message":"noted"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.SendAction(context.Background(), "booking_intent", "CA123", "+15551234567",
		map[string]any{"name": "Jamie", "calendar": "primary"})
	require.NoError(t, err)
	assert.Equal(t, `{"message":"noted"}`, resp)

	assert.Equal(t, float64(ActionRoute), got["route"])
	assert.Equal(t, "booking_intent", got["action"])
	assert.Equal(t, "CA123", got["session_id"])
	assert.Equal(t, "+15551234567", got["caller_number"])
	assert.Equal(t, "Jamie", got["name"])
	assert.Equal(t, "primary", got["calendar"])
}

func intPtr(v int) *int {
	return &v
}
