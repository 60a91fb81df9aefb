package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
)

const sendQueueSize = 64

// liveConn is one live channel connection. All writes after authentication
// go through writePump.
type liveConn struct {
	ws        *websocket.Conn
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newLiveConn(ws *websocket.Conn) *liveConn {
	return &liveConn{
		ws:    ws,
		queue: make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
	}
}

// send enqueues a frame without blocking.
func (lc *liveConn) send(payload []byte) error {
	select {
	case <-lc.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case lc.queue <- payload:
		return nil
	case <-lc.done:
		return ErrConnectionClosed
	default:
		return fmt.Errorf("send queue full")
	}
}

// run starts the write pump and reads frames until the connection fails or
// ctx ends. The read deadline is three heartbeats: the server answers every
// ping, so a silent connection is a dead one.
func (lc *liveConn) run(ctx context.Context, heartbeat time.Duration, accountID string, dispatch func(live.Frame)) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- lc.writePump(heartbeat, accountID)
	}()

	stop := context.AfterFunc(ctx, lc.Close)
	defer stop()

	readTimeout := 3 * heartbeat
	extend := func() {
		_ = lc.ws.SetReadDeadline(time.Now().Add(readTimeout))
	}
	extend()

	// Keep answering server pings while extending the deadline.
	lc.ws.SetPingHandler(func(appData string) error {
		extend()
		err := lc.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	readErr := lc.readPump(extend, dispatch)
	lc.Close()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if werr := <-errChan; werr != nil {
		return werr
	}
	return readErr
}

func (lc *liveConn) readPump(extend func(), dispatch func(live.Frame)) error {
	for {
		_, data, err := lc.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		extend()

		frame, err := live.Decode(data)
		if err != nil {
			continue // Skip malformed frames
		}
		dispatch(frame)
	}
}

// writePump writes queued frames and the periodic heartbeat ping.
func (lc *liveConn) writePump(heartbeat time.Duration, accountID string) error {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ping := live.MustEncode(live.Ping{AccountID: accountID})

	for {
		select {
		case <-lc.done:
			return nil

		case payload := <-lc.queue:
			_ = lc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := lc.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				lc.Close()
				return fmt.Errorf("write message: %w", err)
			}

		case <-ticker.C:
			_ = lc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := lc.ws.WriteMessage(websocket.TextMessage, ping); err != nil {
				lc.Close()
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// Close stops the write pump and unblocks the reader. Safe to call more
// than once.
func (lc *liveConn) Close() {
	lc.closeOnce.Do(func() {
		close(lc.done)
		_ = lc.ws.Close()
	})
}
