package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
)

const goodToken = "good-token"

// fakeServer speaks the live protocol and the HTTP API closely enough for
// the client to run against it.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	liveDisabled bool
	snapshot     []live.CodePayload
	turbo        bool
	pollMs       int64

	push       chan live.Frame
	dials      atomic.Int32
	heartbeats atomic.Int32
	httpClaims atomic.Int32
}

func newFakeServer(t *testing.T, opts ...func(*fakeServer)) *fakeServer {
	t.Helper()
	f := &fakeServer{
		pollMs: 10,
		push:   make(chan live.Frame, 16),
	}
	for _, opt := range opts {
		opt(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.serveLive)
	mux.HandleFunc("/api/codes", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{
			"codes":          f.snapshot,
			"turboMode":      f.turbo,
			"pollIntervalMs": f.pollMs,
		})
	})
	mux.HandleFunc("/api/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		f.heartbeats.Add(1)
		writeEnvelope(w, http.StatusOK, map[string]any{"turboMode": f.turbo, "pollIntervalMs": f.pollMs})
	})
	mux.HandleFunc("/api/claim-result", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		var req claimResultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		applied := f.httpClaims.Add(1) == 1
		writeEnvelope(w, http.StatusOK, claimResultPayload{
			Code:    req.Code,
			Applied: applied,
			Result:  "success",
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"type": "unauthorized", "message": message},
	})
}

func (f *fakeServer) serveLive(w http.ResponseWriter, r *http.Request) {
	f.dials.Add(1)
	if f.liveDisabled {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var writeMu sync.Mutex
	write := func(frame live.Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteMessage(websocket.TextMessage, live.MustEncode(frame))
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		return
	}
	frame, err := live.Decode(data)
	if err != nil {
		return
	}
	auth, ok := frame.(live.Auth)
	if !ok || auth.Token != goodToken {
		_ = write(live.AuthError{Message: "invalid token"})
		return
	}
	if err := write(live.AuthSuccess{
		AccountID:      "acc-1",
		TurboMode:      f.turbo,
		PollIntervalMs: f.pollMs,
		RecentCodes:    f.snapshot,
	}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case frame := <-f.push:
				if err := write(frame); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := live.Decode(data)
		if err != nil {
			continue
		}
		switch in := frame.(type) {
		case live.Ping:
			_ = write(live.Pong{Timestamp: time.Now().UnixMilli()})
		case live.ClaimResult:
			result := "rejected"
			if in.Success {
				result = "success"
			}
			_ = write(live.ClaimAck{Code: in.Code, Applied: true, Result: result, Reason: in.Reason})
		}
	}
}

type recorder struct {
	mu        sync.Mutex
	codes     []string
	settings  []Settings
	connected []string
	fallbacks int
}

func (r *recorder) handler() Handler {
	return Handler{
		OnCode: func(code live.CodePayload) {
			r.mu.Lock()
			r.codes = append(r.codes, code.Token)
			r.mu.Unlock()
		},
		OnSettings: func(s Settings) {
			r.mu.Lock()
			r.settings = append(r.settings, s)
			r.mu.Unlock()
		},
		OnConnected: func(accountID string) {
			r.mu.Lock()
			r.connected = append(r.connected, accountID)
			r.mu.Unlock()
		},
		OnFallback: func() {
			r.mu.Lock()
			r.fallbacks++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) codeTokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

func runClient(t *testing.T, c *Client) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- c.Run(ctx) }()

	var once sync.Once
	var runErr error
	cancel = func() error {
		once.Do(func() {
			stop()
			select {
			case runErr = <-errChan:
			case <-time.After(5 * time.Second):
				t.Fatal("client did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = cancel() })
	return cancel
}

func TestClient_LiveDeliversSnapshotThenPushes(t *testing.T) {
	f := newFakeServer(t, func(f *fakeServer) {
		f.snapshot = []live.CodePayload{
			{Token: "NEWER", Value: "$10"},
			{Token: "OLDER", Value: "$5"},
		}
	})
	rec := &recorder{}
	c := NewClient(f.srv.URL, goodToken, WithHandler(rec.handler()))

	cancel := runClient(t, c)

	require.Eventually(t, func() bool { return c.Mode() == ModeLive }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "acc-1", c.AccountID())

	f.push <- live.NewCode{Code: live.CodePayload{Token: "FRESH"}}
	f.push <- live.NewCode{Code: live.CodePayload{Token: "OLDER"}}
	f.push <- live.TurboState{Enabled: true, PollIntervalMs: 50}

	require.Eventually(t, func() bool {
		return c.Settings() == Settings{TurboMode: true, PollInterval: 50 * time.Millisecond}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"OLDER", "NEWER", "FRESH"}, rec.codeTokens())
	rec.mu.Lock()
	assert.Equal(t, []string{"acc-1"}, rec.connected)
	rec.mu.Unlock()

	assert.ErrorIs(t, cancel(), context.Canceled)
}

func TestClient_AuthRejectedStopsRun(t *testing.T) {
	f := newFakeServer(t)
	c := NewClient(f.srv.URL, "bad-token")

	err := c.Run(context.Background())

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid token", authErr.Message)
	assert.Equal(t, int32(1), f.dials.Load())
}

func TestClient_FallsBackToPolling(t *testing.T) {
	f := newFakeServer(t, func(f *fakeServer) {
		f.liveDisabled = true
		f.snapshot = []live.CodePayload{{Token: "POLLED"}}
	})

	rec := &recorder{}
	var reconnects atomic.Int32
	h := rec.handler()
	h.OnReconnecting = func(int, time.Duration) { reconnects.Add(1) }

	c := NewClient(f.srv.URL, goodToken,
		WithHandler(h),
		WithReconnectConfig(ReconnectConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxAttempts:     2,
		}),
	)
	cancel := runClient(t, c)

	require.Eventually(t, func() bool { return f.heartbeats.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.codeTokens()) == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, ModePolling, c.Mode())
	assert.Equal(t, int32(3), f.dials.Load())
	assert.Equal(t, int32(2), reconnects.Load())
	assert.Equal(t, []string{"POLLED"}, rec.codeTokens())

	assert.ErrorIs(t, cancel(), context.Canceled)
	rec.mu.Lock()
	assert.Equal(t, 1, rec.fallbacks)
	rec.mu.Unlock()
}

func TestClient_ReportClaimOverLiveChannel(t *testing.T) {
	f := newFakeServer(t)
	c := NewClient(f.srv.URL, goodToken)
	runClient(t, c)

	require.Eventually(t, func() bool { return c.Mode() == ModeLive }, 2*time.Second, 10*time.Millisecond)

	ack, err := c.ReportClaim(context.Background(), ClaimReport{Code: " promo1 ", Success: false, Reason: "expired"})
	require.NoError(t, err)
	assert.Equal(t, "PROMO1", ack.Code)
	assert.True(t, ack.Applied)
	assert.Equal(t, "rejected", ack.Result)
	assert.Equal(t, "expired", ack.Reason)
	assert.Zero(t, f.httpClaims.Load())
}

func TestClient_ReportClaimOverHTTPWhenOffline(t *testing.T) {
	f := newFakeServer(t)
	c := NewClient(f.srv.URL, goodToken)

	ack, err := c.ReportClaim(context.Background(), ClaimReport{Code: "PROMO2", Success: true})
	require.NoError(t, err)
	assert.True(t, ack.Applied)
	assert.Equal(t, "success", ack.Result)

	again, err := c.ReportClaim(context.Background(), ClaimReport{Code: "PROMO2", Success: true})
	require.NoError(t, err)
	assert.False(t, again.Applied)
}

func TestClient_HeartbeatUnauthorized(t *testing.T) {
	f := newFakeServer(t)
	c := NewClient(f.srv.URL, "bad-token")

	_, err := c.Heartbeat(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid token", apiErr.Message)
}

func TestClient_BuildWSURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "https://codedrop.example.com/", want: "wss://codedrop.example.com/ws"},
		{base: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{base: "ws://localhost:8080", want: "ws://localhost:8080/ws"},
		{base: "localhost:8080", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := NewClient(tt.base, goodToken).buildWSURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
