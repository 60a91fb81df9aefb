package live

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

type sessionState int

const (
	stateAuthenticating sessionState = iota
	stateActive
	stateClosed
)

// outbound is one queued frame. closeAfter ends the session once the frame
// has been written.
type outbound struct {
	payload    []byte
	closeAfter bool
}

// wsSession is one live channel connection. The read loop owns inbound
// frames; writePump is the only writer of the socket.
type wsSession struct {
	id        string
	accountID string
	conn      *websocket.Conn
	send      chan outbound
	pings     chan struct{}
	done      chan struct{}
	writeWait time.Duration
	logger    logger.Interface

	mu    sync.Mutex
	state sessionState

	awaitingPong atomic.Bool
	closeOnce    sync.Once
}

func newWSSession(id string, conn *websocket.Conn, queueSize int, writeWait time.Duration, log logger.Interface) *wsSession {
	return &wsSession{
		id:        id,
		conn:      conn,
		send:      make(chan outbound, queueSize),
		pings:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		writeWait: writeWait,
		logger:    log,
	}
}

func (s *wsSession) ID() string { return s.id }

// Send enqueues a broadcast frame. It never blocks: a full queue drops the
// frame for this session only.
func (s *wsSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateAuthenticating:
		return services.ErrSessionNotReady
	case stateClosed:
		return services.ErrSessionClosed
	}
	return s.enqueueLocked(outbound{payload: payload})
}

// reply enqueues a direct response regardless of authentication state.
func (s *wsSession) reply(payload []byte, closeAfter bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return services.ErrSessionClosed
	}
	return s.enqueueLocked(outbound{payload: payload, closeAfter: closeAfter})
}

func (s *wsSession) enqueueLocked(msg outbound) error {
	select {
	case s.send <- msg:
		return nil
	default:
		return services.ErrSendQueueFull
	}
}

// activate queues the auth_success frame and opens the session to broadcasts
// in one step, so no broadcast can overtake it.
func (s *wsSession) activate(accountID string, authSuccess []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAuthenticating {
		return services.ErrSessionClosed
	}
	s.accountID = accountID
	if err := s.enqueueLocked(outbound{payload: authSuccess}); err != nil {
		return err
	}
	s.state = stateActive
	return nil
}

func (s *wsSession) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Ping asks the writer to send a ping. It returns false without pinging if
// the previous ping is still unanswered.
func (s *wsSession) Ping() bool {
	if s.awaitingPong.Swap(true) {
		return false
	}
	select {
	case s.pings <- struct{}{}:
	default:
	}
	return true
}

// markAlive records any sign of life from the peer.
func (s *wsSession) markAlive() {
	s.awaitingPong.Store(false)
}

func (s *wsSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		close(s.done)
		s.conn.Close()
	})
}

// writePump writes queued frames and pings to the socket until the session
// closes or a write fails.
func (s *wsSession) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				s.logger.Debugw("live channel write failed",
					"session_id", s.id,
					"account_id", s.accountID,
					"error", err,
				)
				return
			}
			if msg.closeAfter {
				s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
					time.Now().Add(s.writeWait))
				return
			}

		case <-s.pings:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				return
			}

		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeWait))
			return
		}
	}
}
