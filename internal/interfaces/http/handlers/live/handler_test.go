package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountUsecases "github.com/codedrop-io/codedrop/internal/application/account/usecases"
	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	claimUsecases "github.com/codedrop-io/codedrop/internal/application/claim/usecases"
	"github.com/codedrop-io/codedrop/internal/domain/account"
	"github.com/codedrop-io/codedrop/internal/domain/claim"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/infrastructure/auth"
	"github.com/codedrop-io/codedrop/internal/infrastructure/cache"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/goroutine"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

type memoryDirectory struct {
	accounts map[string]*account.Account
}

func (d *memoryDirectory) FindByID(_ context.Context, accountID string) (*account.Account, error) {
	if a, ok := d.accounts[accountID]; ok {
		return a, nil
	}
	return nil, account.ErrAccountNotFound
}

func (d *memoryDirectory) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	for _, a := range d.accounts {
		if a.Username() == username {
			return a, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

type liveFixture struct {
	server      *httptest.Server
	hub         *services.CodeHub
	broadcaster *broadcast.Broadcaster
	tokens      *auth.AccountTokenService
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNopLogger()
	now := time.Now().UTC()

	dir := &memoryDirectory{accounts: map[string]*account.Account{
		"acct_alice":    account.ReconstructAccount("acct_alice", "alice", "Alice", false, 0, true, now, now),
		"acct_disabled": account.ReconstructAccount("acct_disabled", "mallory", "", false, 0, false, now, now),
	}}

	hub := services.NewCodeHub(services.CodeHubConfig{}, nil, log)
	codes := cache.NewCodeCache(cache.DefaultCodeRetention, cache.DefaultMaxCodes, nil)
	b := broadcast.NewBroadcaster(codes, hub, nil, broadcast.NewTurboSwitch(true, 0, 0), nil, goroutine.Inline(log), log)
	tokens := auth.NewAccountTokenService("test-secret", time.Hour, nil)
	profiles := accountUsecases.NewResolveProfileUseCase(dir, log)
	claims := claimUsecases.NewReportClaimResultUseCase(claim.NewCoordinator(10*time.Second, nil), profiles, nil, log)

	h := NewHandler(Config{
		AllowedOrigins: []string{"*"},
		AuthTimeout:    2 * time.Second,
	}, tokens, profiles, hub, b, claims, nil, log)

	router := gin.New()
	router.GET("/ws", h.Connect)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &liveFixture{server: server, hub: hub, broadcaster: b, tokens: tokens}
}

func (f *liveFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *liveFixture) token(t *testing.T, accountID string) string {
	t.Helper()
	token, err := f.tokens.Generate(accountID, accountID)
	require.NoError(t, err)
	return token
}

func send(t *testing.T, conn *websocket.Conn, frame live.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, live.MustEncode(frame)))
}

func receive(t *testing.T, conn *websocket.Conn) live.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := live.Decode(data)
	require.NoError(t, err)
	return frame
}

func (f *liveFixture) authenticate(t *testing.T, accountID string) (*websocket.Conn, live.AuthSuccess) {
	t.Helper()
	conn := f.dial(t)
	send(t, conn, live.Auth{Token: f.token(t, accountID)})
	success, ok := receive(t, conn).(live.AuthSuccess)
	require.True(t, ok)
	return conn, success
}

func TestHandler_AuthSuccessCarriesSnapshot(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.broadcaster.Ingest(context.Background(), "SNAPCODE1", code.SourceIngest)
	require.NoError(t, err)

	_, success := f.authenticate(t, "acct_alice")

	assert.Equal(t, "acct_alice", success.AccountID)
	assert.True(t, success.TurboMode)
	assert.Equal(t, broadcast.DefaultTurboInterval.Milliseconds(), success.PollIntervalMs)
	require.Len(t, success.RecentCodes, 1)
	assert.Equal(t, "SNAPCODE1", success.RecentCodes[0].Token)
	assert.True(t, f.hub.IsOnline("acct_alice"))
}

func TestHandler_BroadcastReachesAuthenticatedSession(t *testing.T) {
	f := newLiveFixture(t)
	conn, _ := f.authenticate(t, "acct_alice")

	result, err := f.broadcaster.Ingest(context.Background(), "New one:\nLIVECODE9", code.SourceIngest)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fanout.Delivered)

	nc, ok := receive(t, conn).(live.NewCode)
	require.True(t, ok)
	assert.Equal(t, "LIVECODE9", nc.Code.Token)
}

func TestHandler_RejectsBadAuth(t *testing.T) {
	tests := []struct {
		name    string
		frame   func(f *liveFixture, t *testing.T) live.Frame
		message string
	}{
		{
			name:    "invalid token",
			frame:   func(*liveFixture, *testing.T) live.Frame { return live.Auth{Token: "not-a-jwt"} },
			message: "invalid token",
		},
		{
			name:    "first frame is not auth",
			frame:   func(*liveFixture, *testing.T) live.Frame { return live.Ping{AccountID: "acct_alice"} },
			message: "authentication required",
		},
		{
			name: "unknown account",
			frame: func(f *liveFixture, t *testing.T) live.Frame {
				return live.Auth{Token: f.token(t, "acct_ghost")}
			},
			message: "account not found",
		},
		{
			name: "disabled account",
			frame: func(f *liveFixture, t *testing.T) live.Frame {
				return live.Auth{Token: f.token(t, "acct_disabled")}
			},
			message: "account disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLiveFixture(t)
			conn := f.dial(t)
			send(t, conn, tt.frame(f, t))

			authErr, ok := receive(t, conn).(live.AuthError)
			require.True(t, ok)
			assert.Equal(t, tt.message, authErr.Message)

			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			_, _, err := conn.ReadMessage()
			assert.Error(t, err)
			assert.Zero(t, f.hub.OnlineCount())
		})
	}
}

func TestHandler_PingRefreshesHeartbeat(t *testing.T) {
	f := newLiveFixture(t)
	conn, _ := f.authenticate(t, "acct_alice")

	send(t, conn, live.Ping{AccountID: "acct_alice"})
	pong, ok := receive(t, conn).(live.Pong)
	require.True(t, ok)
	assert.NotZero(t, pong.Timestamp)

	c, found := f.hub.Get("acct_alice")
	require.True(t, found)
	assert.True(t, c.Live)
}

func TestHandler_ClaimResultIsAcknowledgedOnce(t *testing.T) {
	f := newLiveFixture(t)
	conn, _ := f.authenticate(t, "acct_alice")

	send(t, conn, live.ClaimResult{Code: "claimme1", Success: true, Value: "$5"})
	first, ok := receive(t, conn).(live.ClaimAck)
	require.True(t, ok)
	assert.Equal(t, "CLAIMME1", first.Code)
	assert.True(t, first.Applied)
	assert.Equal(t, string(claim.ResultSuccess), first.Result)

	send(t, conn, live.ClaimResult{Code: "CLAIMME1", Success: false, Reason: "already used"})
	second, ok := receive(t, conn).(live.ClaimAck)
	require.True(t, ok)
	assert.False(t, second.Applied)
	assert.Equal(t, string(claim.ResultSuccess), second.Result)

	send(t, conn, live.ClaimResult{Code: "no"})
	invalid, ok := receive(t, conn).(live.ClaimAck)
	require.True(t, ok)
	assert.False(t, invalid.Applied)
	assert.Equal(t, "invalid code", invalid.Reason)
}

func TestHandler_UnknownFramesAreIgnored(t *testing.T) {
	f := newLiveFixture(t)
	conn, _ := f.authenticate(t, "acct_alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"admin_subscribe"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	send(t, conn, live.Ping{})

	_, ok := receive(t, conn).(live.Pong)
	assert.True(t, ok)
}

func TestHandler_NewSessionSupersedesOld(t *testing.T) {
	f := newLiveFixture(t)
	first, _ := f.authenticate(t, "acct_alice")
	second, _ := f.authenticate(t, "acct_alice")

	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	_, err = f.broadcaster.Ingest(context.Background(), "AFTERSWAP1", code.SourceIngest)
	require.NoError(t, err)
	nc, ok := receive(t, second).(live.NewCode)
	require.True(t, ok)
	assert.Equal(t, "AFTERSWAP1", nc.Code.Token)

	conn, found := f.hub.Get("acct_alice")
	require.True(t, found)
	assert.True(t, conn.Live)
}

func TestHandler_DisconnectReleasesSession(t *testing.T) {
	f := newLiveFixture(t)
	conn, _ := f.authenticate(t, "acct_alice")
	conn.Close()

	require.Eventually(t, func() bool {
		c, ok := f.hub.Get("acct_alice")
		return ok && !c.Live
	}, 3*time.Second, 10*time.Millisecond)

	// Still online during the grace period.
	assert.True(t, f.hub.IsOnline("acct_alice"))
}

func TestHandler_CheckOrigin(t *testing.T) {
	h := &Handler{cfg: Config{AllowedOrigins: []string{"https://app.codedrop.io", "localhost:3000"}}}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.codedrop.io", true},
		{"http://localhost:3000", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, h.checkOrigin(req), "origin %q", tt.origin)
	}
}

func TestSession_SendRequiresActivation(t *testing.T) {
	sess := &wsSession{send: make(chan outbound, 1), pings: make(chan struct{}, 1), done: make(chan struct{})}

	assert.ErrorIs(t, sess.Send([]byte("x")), services.ErrSessionNotReady)

	require.NoError(t, sess.activate("acct_alice", []byte("hello")))
	assert.ErrorIs(t, sess.Send([]byte("x")), services.ErrSendQueueFull)

	<-sess.send
	assert.NoError(t, sess.Send([]byte("x")))
}

func TestSession_PingRequiresAnswer(t *testing.T) {
	sess := &wsSession{pings: make(chan struct{}, 1)}

	assert.True(t, sess.Ping())
	assert.False(t, sess.Ping())

	sess.markAlive()
	assert.True(t, sess.Ping())
}
