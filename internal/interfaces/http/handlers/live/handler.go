// Package live serves the live code channel over WebSocket.
package live

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	claimUsecases "github.com/codedrop-io/codedrop/internal/application/claim/usecases"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/infrastructure/auth"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultPingPeriod     = 30 * time.Second
	defaultAuthTimeout    = 10 * time.Second
	defaultSendQueueSize  = 256
	defaultMaxMessageSize = 64 * 1024
)

// TokenVerifier validates the account token sent in the auth frame.
type TokenVerifier interface {
	Verify(token string) (*auth.AccountClaims, error)
}

// ProfileResolver loads the profile of an authenticated account.
type ProfileResolver interface {
	Execute(ctx context.Context, accountID string) (services.Profile, error)
}

// Registry is the part of the connection registry the channel drives.
type Registry interface {
	Register(profile services.Profile, session services.Session) services.Session
	Heartbeat(accountID string) bool
	Release(accountID string, session services.Session) bool
}

// Attacher runs session activation atomically with respect to broadcasts.
type Attacher interface {
	Attach(fn func(snapshot []code.Code, settings broadcast.TurboSettings))
}

// ClaimReporter records claim results sent over the channel.
type ClaimReporter interface {
	Execute(ctx context.Context, cmd claimUsecases.ReportClaimResultCommand) (*claimUsecases.ReportClaimResultResult, error)
}

// Config holds the channel timings and limits. Zero values use defaults.
type Config struct {
	AllowedOrigins []string
	SendQueueSize  int
	AuthTimeout    time.Duration
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = defaultPingPeriod
	}
	if c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait / 2
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

// Handler upgrades clients to the live channel and runs their sessions.
type Handler struct {
	cfg      Config
	upgrader websocket.Upgrader
	tokens   TokenVerifier
	profiles ProfileResolver
	registry Registry
	attacher Attacher
	claims   ClaimReporter
	now      shared.Clock
	logger   logger.Interface
}

// NewHandler creates a new live channel Handler.
func NewHandler(
	cfg Config,
	tokens TokenVerifier,
	profiles ProfileResolver,
	registry Registry,
	attacher Attacher,
	claims ClaimReporter,
	clock shared.Clock,
	log logger.Interface,
) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{
		cfg:      cfg,
		tokens:   tokens,
		profiles: profiles,
		registry: registry,
		attacher: attacher,
		claims:   claims,
		now:      clock.OrSystem(),
		logger:   log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows requests without an Origin header (non-browser
// clients) and origins listed in the configuration. "*" allows all.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Connect handles the live channel upgrade.
// GET /ws
func (h *Handler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("failed to upgrade to websocket",
			"error", err,
			"ip", c.ClientIP(),
		)
		return
	}

	sess := newWSSession(uuid.NewString(), conn, h.cfg.SendQueueSize, h.cfg.WriteWait, h.logger)
	h.logger.Debugw("live channel opened",
		"session_id", sess.id,
		"ip", c.ClientIP(),
	)

	go sess.writePump(h.cfg.PingPeriod)
	h.readPump(c.Request.Context(), sess)
}

func (h *Handler) readPump(ctx context.Context, sess *wsSession) {
	var accountID string
	defer func() {
		if accountID != "" {
			h.registry.Release(accountID, sess)
		}
		sess.Close()
		h.logger.Debugw("live channel closed",
			"session_id", sess.id,
			"account_id", accountID,
		)
	}()

	conn := sess.conn
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))
	conn.SetPongHandler(func(string) error {
		sess.markAlive()
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		return nil
	})

	profile, ok := h.authenticate(ctx, sess)
	if !ok {
		return
	}
	accountID = profile.AccountID
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warnw("live channel read error",
					"error", err,
					"account_id", accountID,
				)
			}
			return
		}
		sess.markAlive()
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		frame, err := live.Decode(message)
		if err != nil {
			h.logger.Warnw("failed to parse live channel frame",
				"error", err,
				"account_id", accountID,
			)
			continue
		}

		switch f := frame.(type) {
		case live.Ping:
			h.registry.Heartbeat(accountID)
			h.reply(sess, live.Pong{Timestamp: h.now().UnixMilli()})
		case live.ClaimResult:
			h.handleClaimResult(ctx, sess, accountID, f)
		case live.Auth:
			// Already authenticated.
		default:
			h.logger.Debugw("ignoring live channel frame",
				"type", frame.Kind(),
				"account_id", accountID,
			)
		}
	}
}

// authenticate reads the auth frame and activates the session. On failure it
// sends auth_error and waits for the writer to flush it.
func (h *Handler) authenticate(ctx context.Context, sess *wsSession) (services.Profile, bool) {
	_, message, err := sess.conn.ReadMessage()
	if err != nil {
		h.logger.Debugw("live channel closed before auth",
			"session_id", sess.id,
			"error", err,
		)
		return services.Profile{}, false
	}

	frame, err := live.Decode(message)
	if err != nil {
		h.rejectAuth(sess, "malformed frame")
		return services.Profile{}, false
	}
	authFrame, ok := frame.(live.Auth)
	if !ok || authFrame.Token == "" {
		h.rejectAuth(sess, "authentication required")
		return services.Profile{}, false
	}

	claims, err := h.tokens.Verify(authFrame.Token)
	if err != nil {
		h.logger.Infow("live channel auth rejected",
			"session_id", sess.id,
			"error", err,
		)
		h.rejectAuth(sess, "invalid token")
		return services.Profile{}, false
	}

	profile, err := h.profiles.Execute(ctx, claims.AccountID)
	if err != nil {
		reason := "authentication failed"
		if appErr := errors.GetAppError(err); appErr != nil {
			reason = appErr.Message
		}
		h.logger.Infow("live channel profile rejected",
			"session_id", sess.id,
			"account_id", claims.AccountID,
			"error", err,
		)
		h.rejectAuth(sess, reason)
		return services.Profile{}, false
	}

	var (
		activateErr error
		superseded  services.Session
	)
	h.attacher.Attach(func(snapshot []code.Code, settings broadcast.TurboSettings) {
		payload := live.MustEncode(live.AuthSuccess{
			AccountID:      profile.AccountID,
			TurboMode:      settings.Enabled,
			PollIntervalMs: settings.PollInterval.Milliseconds(),
			RecentCodes:    live.FromCodes(snapshot),
		})
		if activateErr = sess.activate(profile.AccountID, payload); activateErr != nil {
			return
		}
		superseded = h.registry.Register(profile, sess)
	})
	if activateErr != nil {
		h.logger.Warnw("failed to activate live session",
			"session_id", sess.id,
			"account_id", profile.AccountID,
			"error", activateErr,
		)
		return services.Profile{}, false
	}
	if superseded != nil {
		superseded.Close()
	}

	h.logger.Infow("live session authenticated",
		"session_id", sess.id,
		"account_id", profile.AccountID,
		"replaced_session", superseded != nil,
	)
	return profile, true
}

func (h *Handler) rejectAuth(sess *wsSession, message string) {
	if err := sess.reply(live.MustEncode(live.AuthError{Message: message}), true); err != nil {
		return
	}
	select {
	case <-sess.done:
	case <-time.After(h.cfg.WriteWait):
	}
}

func (h *Handler) handleClaimResult(ctx context.Context, sess *wsSession, accountID string, f live.ClaimResult) {
	result, err := h.claims.Execute(ctx, claimUsecases.ReportClaimResultCommand{
		AccountID: accountID,
		Token:     f.Code,
		Success:   f.Success,
		Reason:    f.Reason,
		Value:     f.Value,
		Source:    f.Source,
	})
	if err != nil {
		ack := live.ClaimAck{Code: f.Code, Reason: "internal error"}
		if appErr := errors.GetAppError(err); appErr != nil {
			ack.Reason = appErr.Message
		} else {
			h.logger.Errorw("failed to record claim result from live channel",
				"account_id", accountID,
				"code", f.Code,
				"error", err,
			)
		}
		h.reply(sess, ack)
		return
	}

	h.reply(sess, live.ClaimAck{
		Code:    result.Outcome.Token,
		Applied: result.Applied,
		Result:  string(result.Outcome.Result),
		Reason:  result.Outcome.Reason,
	})
}

func (h *Handler) reply(sess *wsSession, f live.Frame) {
	if err := sess.reply(live.MustEncode(f), false); err != nil {
		h.logger.Warnw("failed to queue live channel reply",
			"session_id", sess.id,
			"account_id", sess.accountID,
			"type", f.Kind(),
			"error", err,
		)
	}
}
