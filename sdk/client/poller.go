package client

import (
	"context"
	"time"
)

const defaultPollInterval = 200 * time.Millisecond

// Poller fetches the recent-code snapshot at the interval the server
// advertises. It delivers through the owning client, so a code already seen
// on the live channel is not delivered again.
type Poller struct {
	client        *Client
	lastHeartbeat time.Time
}

// NewPoller creates a poller bound to c.
func NewPoller(c *Client) *Poller {
	return &Poller{client: c}
}

// Run polls until ctx is cancelled. Poll failures are reported through the
// handler and do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	c := p.client
	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			c.reportError(err)
		}

		interval := c.Settings().PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.after(interval):
		}
	}
}

// PollOnce fetches one snapshot, applies its settings and delivers unseen
// codes oldest first. A heartbeat is posted when one is due.
func (p *Poller) PollOnce(ctx context.Context) error {
	c := p.client

	snapshot, err := c.FetchCodes(ctx)
	if err != nil {
		return err
	}
	c.applySettings(snapshot.Settings)
	c.deliverSnapshot(snapshot.Codes)

	now := c.now()
	if p.lastHeartbeat.IsZero() || now.Sub(p.lastHeartbeat) >= c.heartbeatInterval {
		p.lastHeartbeat = now
		if _, err := c.Heartbeat(ctx); err != nil {
			return err
		}
	}
	return nil
}
