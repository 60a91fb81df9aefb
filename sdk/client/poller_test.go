package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func TestPoller_PollOnce(t *testing.T) {
	f := newFakeServer(t, func(f *fakeServer) {
		f.turbo = true
		f.pollMs = 50
		f.snapshot = []live.CodePayload{{Token: "SECOND"}, {Token: "FIRST"}}
	})
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	c := NewClient(f.srv.URL, goodToken,
		WithHandler(rec.handler()),
		WithHeartbeatInterval(30*time.Second),
		WithClock(clock.Now, nil),
	)
	p := NewPoller(c)
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx))
	assert.Equal(t, []string{"FIRST", "SECOND"}, rec.codeTokens())
	assert.Equal(t, Settings{TurboMode: true, PollInterval: 50 * time.Millisecond}, c.Settings())
	assert.Equal(t, int32(1), f.heartbeats.Load())

	// Codes already seen are not delivered twice; the heartbeat waits for
	// its interval.
	clock.Advance(10 * time.Second)
	require.NoError(t, p.PollOnce(ctx))
	assert.Len(t, rec.codeTokens(), 2)
	assert.Equal(t, int32(1), f.heartbeats.Load())

	clock.Advance(20 * time.Second)
	require.NoError(t, p.PollOnce(ctx))
	assert.Equal(t, int32(2), f.heartbeats.Load())
}

func TestPoller_SkipsCodesSeenLive(t *testing.T) {
	f := newFakeServer(t, func(f *fakeServer) {
		f.snapshot = []live.CodePayload{{Token: "LIVE1"}, {Token: "ONLYPOLLED"}}
	})
	rec := &recorder{}
	c := NewClient(f.srv.URL, goodToken, WithHandler(rec.handler()))
	c.deliver(live.CodePayload{Token: "LIVE1"})

	require.NoError(t, NewPoller(c).PollOnce(context.Background()))

	assert.Equal(t, []string{"LIVE1", "ONLYPOLLED"}, rec.codeTokens())
}

func TestPoller_RunReportsErrors(t *testing.T) {
	f := newFakeServer(t)
	errs := make(chan error, 1)
	c := NewClient(f.srv.URL, "bad-token", WithHandler(Handler{
		OnError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPoller(c).Run(ctx) }()

	select {
	case err := <-errs:
		var apiErr *APIError
		assert.ErrorAs(t, err, &apiErr)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a poll error")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
