// Package services provides infrastructure services.
package services

import (
	"sort"
	"sync"
	"time"

	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/shared/goroutine"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

const (
	// DefaultGracePeriod keeps a just-disconnected account online so that a
	// quick reconnect does not flap its presence.
	DefaultGracePeriod = 5 * time.Second
)

// Session is a live channel connection as seen by the hub.
type Session interface {
	// ID returns the unique session ID.
	ID() string
	// Send enqueues an encoded frame without blocking.
	Send(payload []byte) error
	// Ping sends a liveness ping. It returns false if the previous ping
	// was never answered.
	Ping() bool
	// Close terminates the session. Safe to call more than once.
	Close()
}

// Profile is the account data cached for the lifetime of a connection.
type Profile struct {
	AccountID      string
	DisplayName    string
	NotifyEnabled  bool
	TelegramChatID int64
}

// Connection is a point-in-time view of a registry entry.
type Connection struct {
	Profile
	Live        bool
	SessionID   string
	LastSeenAt  time.Time
	ConnectedAt time.Time
	DetachedAt  time.Time
}

// LiveSession pairs a session with the account it belongs to.
type LiveSession struct {
	AccountID string
	Session   Session
}

type hubEntry struct {
	profile     Profile
	session     Session
	lastSeenAt  time.Time
	connectedAt time.Time
	detachedAt  time.Time
}

func (e *hubEntry) view() Connection {
	c := Connection{
		Profile:     e.profile,
		Live:        e.session != nil,
		LastSeenAt:  e.lastSeenAt,
		ConnectedAt: e.connectedAt,
		DetachedAt:  e.detachedAt,
	}
	if e.session != nil {
		c.SessionID = e.session.ID()
	}
	return c
}

// CodeHubConfig holds the liveness policy of the hub.
type CodeHubConfig struct {
	HeartbeatTimeout time.Duration
	GracePeriod      time.Duration
}

// CodeHub is the connection registry. It tracks which accounts can receive
// pushed codes and which are merely polling, and decides who is online.
//
// An account is online while it has a live session. Once the session
// detaches it stays online for the grace period, and after that only while
// it keeps sending heartbeats within the heartbeat timeout. An account that
// never had a session is online while its heartbeat is fresh.
type CodeHub struct {
	entries   map[string]*hubEntry
	entriesMu sync.RWMutex

	heartbeatTimeout time.Duration
	gracePeriod      time.Duration
	now              shared.Clock

	// Callbacks
	onOnline  func(conn Connection)
	onOffline func(conn Connection)

	logger logger.Interface
}

// NewCodeHub creates a new CodeHub instance.
func NewCodeHub(cfg CodeHubConfig, clock shared.Clock, log logger.Interface) *CodeHub {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = shared.DefaultHeartbeatTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &CodeHub{
		entries:          make(map[string]*hubEntry),
		heartbeatTimeout: cfg.HeartbeatTimeout,
		gracePeriod:      cfg.GracePeriod,
		now:              clock.OrSystem(),
		logger:           log,
	}
}

// SetOnOnline sets the callback for accounts coming online.
func (h *CodeHub) SetOnOnline(fn func(conn Connection)) {
	h.onOnline = fn
}

// SetOnOffline sets the callback for accounts removed by Sweep.
func (h *CodeHub) SetOnOffline(fn func(conn Connection)) {
	h.onOffline = fn
}

func (h *CodeHub) isOnline(e *hubEntry, now time.Time) bool {
	if e.session != nil {
		return true
	}
	if e.detachedAt.IsZero() {
		return shared.IsFresh(e.lastSeenAt, now, h.heartbeatTimeout)
	}
	if now.Sub(e.detachedAt) < h.gracePeriod {
		return true
	}
	return e.lastSeenAt.After(e.detachedAt) && shared.IsFresh(e.lastSeenAt, now, h.heartbeatTimeout)
}

// Register attaches session as the live session of the account. A previous
// session for the same account is detached and returned; the caller must
// close it.
func (h *CodeHub) Register(profile Profile, session Session) (superseded Session) {
	now := h.now()

	h.entriesMu.Lock()
	e, ok := h.entries[profile.AccountID]
	wasOnline := ok && h.isOnline(e, now)
	if !ok {
		e = &hubEntry{}
		h.entries[profile.AccountID] = e
	}
	if e.session != nil && e.session != session {
		superseded = e.session
	}
	e.profile = profile
	e.session = session
	e.lastSeenAt = now
	e.connectedAt = now
	e.detachedAt = time.Time{}
	view := e.view()
	h.entriesMu.Unlock()

	h.logger.Infow("account connected via live channel",
		"account_id", profile.AccountID,
		"session_id", session.ID(),
		"superseded", superseded != nil,
	)

	if !wasOnline && h.onOnline != nil {
		goroutine.SafeGo(h.logger, "codehub-on-online", func() { h.onOnline(view) })
	}
	return superseded
}

// TrackPassive records a heartbeat from an account that polls instead of
// holding a live session. It creates the entry if needed.
func (h *CodeHub) TrackPassive(profile Profile) {
	now := h.now()

	h.entriesMu.Lock()
	e, ok := h.entries[profile.AccountID]
	wasOnline := ok && h.isOnline(e, now)
	if !ok {
		e = &hubEntry{connectedAt: now}
		h.entries[profile.AccountID] = e
	}
	e.profile = profile
	e.lastSeenAt = now
	view := e.view()
	h.entriesMu.Unlock()

	if !wasOnline && h.onOnline != nil {
		goroutine.SafeGo(h.logger, "codehub-on-online", func() { h.onOnline(view) })
	}
}

// UpdateProfile replaces the profile of a tracked account without touching
// its liveness. It returns false if the account is not tracked.
func (h *CodeHub) UpdateProfile(profile Profile) bool {
	h.entriesMu.Lock()
	defer h.entriesMu.Unlock()

	e, ok := h.entries[profile.AccountID]
	if !ok {
		return false
	}
	e.profile = profile
	return true
}

// Heartbeat refreshes the last-seen time of a known account. It returns
// false if the account is not tracked.
func (h *CodeHub) Heartbeat(accountID string) bool {
	now := h.now()

	h.entriesMu.Lock()
	defer h.entriesMu.Unlock()

	e, ok := h.entries[accountID]
	if !ok {
		return false
	}
	e.lastSeenAt = now
	return true
}

// Release detaches session from the account if it is still the current one.
// A superseded session releasing late does not affect its replacement.
func (h *CodeHub) Release(accountID string, session Session) bool {
	h.entriesMu.Lock()
	e, ok := h.entries[accountID]
	if !ok || e.session != session {
		h.entriesMu.Unlock()
		return false
	}
	e.session = nil
	e.detachedAt = h.now()
	h.entriesMu.Unlock()

	h.logger.Infow("account live channel detached",
		"account_id", accountID,
		"session_id", session.ID(),
	)
	return true
}

// Unregister detaches whatever session the account holds and returns it.
// The entry itself is dropped by Sweep once the grace period has passed.
func (h *CodeHub) Unregister(accountID string) Session {
	h.entriesMu.Lock()
	e, ok := h.entries[accountID]
	if !ok || e.session == nil {
		h.entriesMu.Unlock()
		return nil
	}
	session := e.session
	e.session = nil
	e.detachedAt = h.now()
	h.entriesMu.Unlock()

	h.logger.Infow("account unregistered",
		"account_id", accountID,
		"session_id", session.ID(),
	)
	return session
}

// IsOnline reports whether the account is online.
func (h *CodeHub) IsOnline(accountID string) bool {
	now := h.now()

	h.entriesMu.RLock()
	defer h.entriesMu.RUnlock()

	e, ok := h.entries[accountID]
	return ok && h.isOnline(e, now)
}

// OnlineCount returns the number of online accounts.
func (h *CodeHub) OnlineCount() int {
	now := h.now()

	h.entriesMu.RLock()
	defer h.entriesMu.RUnlock()

	n := 0
	for _, e := range h.entries {
		if h.isOnline(e, now) {
			n++
		}
	}
	return n
}

// ListOnline returns the IDs of online accounts in sorted order.
func (h *CodeHub) ListOnline() []string {
	conns := h.Online()
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.AccountID)
	}
	return ids
}

// Online returns a snapshot of online connections sorted by account ID.
func (h *CodeHub) Online() []Connection {
	now := h.now()

	h.entriesMu.RLock()
	conns := make([]Connection, 0, len(h.entries))
	for _, e := range h.entries {
		if h.isOnline(e, now) {
			conns = append(conns, e.view())
		}
	}
	h.entriesMu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].AccountID < conns[j].AccountID })
	return conns
}

// Get returns the connection of an account, online or not.
func (h *CodeHub) Get(accountID string) (Connection, bool) {
	h.entriesMu.RLock()
	defer h.entriesMu.RUnlock()

	e, ok := h.entries[accountID]
	if !ok {
		return Connection{}, false
	}
	return e.view(), true
}

// LiveSessions returns a snapshot of all attached sessions. Callers send to
// the snapshot without holding the registry lock.
func (h *CodeHub) LiveSessions() []LiveSession {
	h.entriesMu.RLock()
	defer h.entriesMu.RUnlock()

	sessions := make([]LiveSession, 0, len(h.entries))
	for id, e := range h.entries {
		if e.session != nil {
			sessions = append(sessions, LiveSession{AccountID: id, Session: e.session})
		}
	}
	return sessions
}

// Sweep removes entries that are no longer online and returns them. The
// offline callback fires for each removed entry.
func (h *CodeHub) Sweep() []Connection {
	now := h.now()

	h.entriesMu.Lock()
	var removed []Connection
	for id, e := range h.entries {
		if h.isOnline(e, now) {
			continue
		}
		removed = append(removed, e.view())
		delete(h.entries, id)
	}
	h.entriesMu.Unlock()

	for _, c := range removed {
		h.logger.Infow("account went offline",
			"account_id", c.AccountID,
			"last_seen_at", c.LastSeenAt,
		)
		if h.onOffline != nil {
			conn := c
			goroutine.SafeGo(h.logger, "codehub-on-offline", func() { h.onOffline(conn) })
		}
	}
	return removed
}

// HealthSweep pings every live session and closes those that did not answer
// the previous ping. It returns how many sessions were closed. Closed
// sessions release themselves from the hub when their read loop exits.
func (h *CodeHub) HealthSweep() int {
	closed := 0
	for _, ls := range h.LiveSessions() {
		if ls.Session.Ping() {
			continue
		}
		h.logger.Warnw("closing unresponsive live session",
			"account_id", ls.AccountID,
			"session_id", ls.Session.ID(),
		)
		ls.Session.Close()
		closed++
	}
	return closed
}

// HubErrors defines live session related errors.
var (
	ErrSessionNotReady = &HubError{Code: "SESSION_NOT_READY", Message: "session not authenticated"}
	ErrSessionClosed   = &HubError{Code: "SESSION_CLOSED", Message: "session closed"}
	ErrSendQueueFull   = &HubError{Code: "SEND_QUEUE_FULL", Message: "send queue full"}
)

// HubError represents a live session error.
type HubError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *HubError) Error() string {
	return e.Message
}
