// Package client is the Go client for the codedrop server. It keeps a live
// channel open for pushed codes, reconnects with backoff, and falls back to
// polling the HTTP snapshot once the live channel keeps failing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultAuthTimeout       = 10 * time.Second
	defaultAckTimeout        = 5 * time.Second
	defaultSeenCapacity      = 1024
	writeWait                = 10 * time.Second
)

var (
	// ErrNotConnected is returned when a live-only operation runs while no
	// live session is active.
	ErrNotConnected = errors.New("live channel not connected")

	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// AuthError is returned by Run when the server rejects the token. The client
// does not retry: a rejected token stays rejected.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Message)
}

// APIError is a non-2xx response from the HTTP API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status=%d type=%s: %s", e.StatusCode, e.Type, e.Message)
}

// Settings is the server's polling recommendation.
type Settings struct {
	TurboMode    bool
	PollInterval time.Duration
}

func settingsFromMillis(turbo bool, ms int64) Settings {
	return Settings{TurboMode: turbo, PollInterval: time.Duration(ms) * time.Millisecond}
}

// Mode is the delivery path currently in use.
type Mode int

const (
	ModeConnecting Mode = iota
	ModeLive
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModePolling:
		return "polling"
	default:
		return "connecting"
	}
}

// Handler receives client events. Callbacks run on the client's reader
// goroutine and must not block; hand long work off to another goroutine.
// Every field is optional.
type Handler struct {
	// OnCode is called once per code token, whichever path delivered it.
	OnCode func(code live.CodePayload)

	// OnSettings is called when the polling recommendation changes.
	OnSettings func(settings Settings)

	// OnClaimAck is called for every claim acknowledgement received on the
	// live channel.
	OnClaimAck func(ack live.ClaimAck)

	// OnConnected is called after a live session authenticates.
	OnConnected func(accountID string)

	// OnDisconnected is called when a connection attempt or session ends.
	OnDisconnected func(err error)

	// OnReconnecting is called before each reconnection attempt.
	OnReconnecting func(attempt int, delay time.Duration)

	// OnFallback is called once when the client gives up on the live
	// channel and starts polling.
	OnFallback func()

	// OnError reports non-fatal errors such as a failed poll.
	OnError func(err error)
}

// Option is a function that configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithReconnectConfig overrides the reconnection policy.
func WithReconnectConfig(cfg ReconnectConfig) Option {
	return func(c *Client) {
		c.reconnect = cfg
	}
}

// WithHeartbeatInterval sets how often the client pings while live and
// posts heartbeats while polling.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		c.heartbeatInterval = d
	}
}

// WithAckTimeout sets how long ReportClaim waits for a live acknowledgement
// before retrying over HTTP.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.ackTimeout = d
	}
}

// WithHandler sets the event callbacks.
func WithHandler(h Handler) Option {
	return func(c *Client) {
		c.handler = h
	}
}

// WithClock replaces the time source and timer used between reconnects and
// polls.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
		if after != nil {
			c.after = after
		}
	}
}

// Client is a codedrop API and live channel client.
type Client struct {
	baseURL           string
	token             string
	httpClient        *http.Client
	dialer            *websocket.Dialer
	reconnect         ReconnectConfig
	heartbeatInterval time.Duration
	authTimeout       time.Duration
	ackTimeout        time.Duration
	handler           Handler
	now               func() time.Time
	after             func(time.Duration) <-chan time.Time
	seen              *lru.Cache[string, struct{}]

	mu        sync.Mutex
	conn      *liveConn
	mode      Mode
	accountID string
	settings  Settings
	pending   map[string][]chan live.ClaimAck
}

// NewClient creates a new client.
//
// Parameters:
//   - baseURL: The server base URL (e.g., "https://codedrop.example.com")
//   - token: The account token minted by the server
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		reconnect:         DefaultReconnectConfig(),
		heartbeatInterval: defaultHeartbeatInterval,
		authTimeout:       defaultAuthTimeout,
		ackTimeout:        defaultAckTimeout,
		now:               time.Now,
		after:             time.After,
		pending:           make(map[string][]chan live.ClaimAck),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Capacity is a positive constant, so New cannot fail.
	c.seen, _ = lru.New[string, struct{}](defaultSeenCapacity)
	return c
}

// Mode returns the delivery path currently in use.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// AccountID returns the account the server authenticated, or "" before the
// first successful authentication.
func (c *Client) AccountID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID
}

// Settings returns the last polling recommendation received.
func (c *Client) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Run keeps the client connected until ctx is cancelled. It reconnects with
// backoff after each failure; when the policy is exhausted it switches to
// polling for the rest of its lifetime. Run returns early only if the server
// rejects the token.
func (c *Client) Run(ctx context.Context) error {
	policy := NewReconnectPolicy(c.reconnect)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		authenticated, err := c.runLive(ctx)
		c.notifyDisconnected(err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return err
		}
		if authenticated {
			policy.Reset()
		}

		delay, ok := policy.Next()
		if !ok {
			c.setMode(ModePolling)
			if c.handler.OnFallback != nil {
				c.handler.OnFallback()
			}
			return NewPoller(c).Run(ctx)
		}

		if c.handler.OnReconnecting != nil {
			c.handler.OnReconnecting(policy.Attempts(), delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.after(delay):
		}
	}
}

// runLive executes a single live channel lifecycle.
func (c *Client) runLive(ctx context.Context) (authenticated bool, err error) {
	c.setMode(ModeConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	welcome, err := c.authenticate(conn)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mode = ModeLive
	c.accountID = welcome.AccountID
	c.mu.Unlock()
	defer c.detach(conn)

	if c.handler.OnConnected != nil {
		c.handler.OnConnected(welcome.AccountID)
	}
	c.applySettings(settingsFromMillis(welcome.TurboMode, welcome.PollIntervalMs))
	c.deliverSnapshot(welcome.RecentCodes)

	return true, conn.run(ctx, c.heartbeatInterval, welcome.AccountID, c.dispatch)
}

func (c *Client) dial(ctx context.Context) (*liveConn, error) {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	ws, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed: status=%d, err=%w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return newLiveConn(ws), nil
}

// buildWSURL converts the base URL to the live channel endpoint.
func (c *Client) buildWSURL() (string, error) {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/ws", nil
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/ws", nil
	case strings.HasPrefix(c.baseURL, "ws://"), strings.HasPrefix(c.baseURL, "wss://"):
		return c.baseURL + "/ws", nil
	default:
		return "", fmt.Errorf("unsupported base url %q", c.baseURL)
	}
}

// authenticate sends the auth frame and waits for the verdict. It runs
// before the pumps start, so it owns the connection.
func (c *Client) authenticate(conn *liveConn) (*live.AuthSuccess, error) {
	deadline := time.Now().Add(c.authTimeout)

	_ = conn.ws.SetWriteDeadline(deadline)
	if err := conn.ws.WriteMessage(websocket.TextMessage, live.MustEncode(live.Auth{Token: c.token})); err != nil {
		return nil, fmt.Errorf("send auth: %w", err)
	}

	_ = conn.ws.SetReadDeadline(deadline)
	_, data, err := conn.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}

	frame, err := live.Decode(data)
	if err != nil {
		return nil, err
	}
	switch f := frame.(type) {
	case live.AuthSuccess:
		return &f, nil
	case live.AuthError:
		return nil, &AuthError{Message: f.Message}
	default:
		return nil, fmt.Errorf("unexpected %s frame during authentication", frame.Kind())
	}
}

func (c *Client) detach(conn *liveConn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.mode = ModeConnecting
	}
	c.mu.Unlock()
}

func (c *Client) setMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

func (c *Client) activeConn() *liveConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// dispatch handles one frame received on an active session.
func (c *Client) dispatch(frame live.Frame) {
	switch f := frame.(type) {
	case live.NewCode:
		c.deliver(f.Code)
	case live.TurboState:
		c.applySettings(settingsFromMillis(f.Enabled, f.PollIntervalMs))
	case live.ClaimAck:
		c.resolvePending(f)
		if c.handler.OnClaimAck != nil {
			c.handler.OnClaimAck(f)
		}
	case live.Pong:
	default:
		// Unknown and out-of-phase frames are ignored.
	}
}

// deliverSnapshot delivers a newest-first snapshot in observation order.
func (c *Client) deliverSnapshot(codes []live.CodePayload) {
	for i := len(codes) - 1; i >= 0; i-- {
		c.deliver(codes[i])
	}
}

// deliver hands a code to the handler unless it was delivered before.
func (c *Client) deliver(code live.CodePayload) {
	if code.Token == "" {
		return
	}
	if seen, _ := c.seen.ContainsOrAdd(code.Token, struct{}{}); seen {
		return
	}
	if c.handler.OnCode != nil {
		c.handler.OnCode(code)
	}
}

func (c *Client) applySettings(s Settings) {
	c.mu.Lock()
	changed := c.settings != s
	c.settings = s
	c.mu.Unlock()

	if changed && c.handler.OnSettings != nil {
		c.handler.OnSettings(s)
	}
}

func (c *Client) notifyDisconnected(err error) {
	if c.handler.OnDisconnected != nil {
		c.handler.OnDisconnected(err)
	}
}

func (c *Client) reportError(err error) {
	if c.handler.OnError != nil {
		c.handler.OnError(err)
	}
}

// ClaimReport is the outcome of a claim attempt made by this client.
type ClaimReport struct {
	Code    string
	Success bool
	Reason  string
	Value   string
	Source  string
}

// ReportClaim reports a claim outcome. It prefers the live channel and
// retries over HTTP when no session is active or no acknowledgement arrives
// within the ack timeout. The server applies only the first report, so a
// retry never records a second outcome.
func (c *Client) ReportClaim(ctx context.Context, r ClaimReport) (live.ClaimAck, error) {
	token := strings.ToUpper(strings.TrimSpace(r.Code))

	if conn := c.activeConn(); conn != nil {
		ch := c.addPending(token)
		frame := live.ClaimResult{Code: token, Success: r.Success, Reason: r.Reason, Value: r.Value, Source: r.Source}
		if err := conn.send(live.MustEncode(frame)); err == nil {
			select {
			case ack := <-ch:
				return ack, nil
			case <-ctx.Done():
				c.removePending(token, ch)
				return live.ClaimAck{}, ctx.Err()
			case <-c.after(c.ackTimeout):
			}
		}
		c.removePending(token, ch)
	}

	return c.reportClaimHTTP(ctx, r)
}

func (c *Client) addPending(token string) chan live.ClaimAck {
	ch := make(chan live.ClaimAck, 1)
	c.mu.Lock()
	c.pending[token] = append(c.pending[token], ch)
	c.mu.Unlock()
	return ch
}

func (c *Client) removePending(token string, ch chan live.ClaimAck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.pending[token]
	for i, w := range waiters {
		if w == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(c.pending, token)
	} else {
		c.pending[token] = waiters
	}
}

func (c *Client) resolvePending(ack live.ClaimAck) {
	c.mu.Lock()
	waiters := c.pending[ack.Code]
	delete(c.pending, ack.Code)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- ack
	}
}

// HTTP API

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type settingsPayload struct {
	TurboMode      bool  `json:"turboMode"`
	PollIntervalMs int64 `json:"pollIntervalMs"`
}

type codesPayload struct {
	Codes []live.CodePayload `json:"codes"`
	settingsPayload
}

type claimResultRequest struct {
	Code    string `json:"code"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Value   string `json:"value,omitempty"`
	Source  string `json:"source,omitempty"`
}

type claimResultPayload struct {
	Code     string `json:"code"`
	Applied  bool   `json:"applied"`
	Result   string `json:"result"`
	Reason   string `json:"reason"`
	Notified bool   `json:"notified"`
}

// Snapshot is the polling fallback view of the recent codes.
type Snapshot struct {
	// Codes are newest first.
	Codes    []live.CodePayload
	Settings Settings
}

// FetchCodes retrieves the recent-code snapshot.
func (c *Client) FetchCodes(ctx context.Context) (*Snapshot, error) {
	var resp codesPayload
	if err := c.doRequest(ctx, http.MethodGet, "/api/codes", nil, false, &resp); err != nil {
		return nil, fmt.Errorf("fetch codes: %w", err)
	}
	return &Snapshot{
		Codes:    resp.Codes,
		Settings: settingsFromMillis(resp.TurboMode, resp.PollIntervalMs),
	}, nil
}

// Heartbeat records a passive heartbeat and returns the current settings.
func (c *Client) Heartbeat(ctx context.Context) (Settings, error) {
	var resp settingsPayload
	if err := c.doRequest(ctx, http.MethodPost, "/api/heartbeat", nil, true, &resp); err != nil {
		return Settings{}, fmt.Errorf("heartbeat: %w", err)
	}
	return settingsFromMillis(resp.TurboMode, resp.PollIntervalMs), nil
}

func (c *Client) reportClaimHTTP(ctx context.Context, r ClaimReport) (live.ClaimAck, error) {
	body := claimResultRequest{
		Code:    r.Code,
		Success: r.Success,
		Reason:  r.Reason,
		Value:   r.Value,
		Source:  r.Source,
	}
	var resp claimResultPayload
	if err := c.doRequest(ctx, http.MethodPost, "/api/claim-result", body, true, &resp); err != nil {
		return live.ClaimAck{}, fmt.Errorf("report claim result: %w", err)
	}
	return live.ClaimAck{
		Type:    live.TypeClaimAck,
		Code:    resp.Code,
		Applied: resp.Applied,
		Result:  resp.Result,
		Reason:  resp.Reason,
	}, nil
}

// doRequest performs an HTTP request and unwraps the response envelope.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, authenticated bool, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}
