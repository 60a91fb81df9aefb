// Package notification delivers out-of-band chat notifications about codes,
// claims and account presence. Every entry point returns immediately; the
// sends happen on a background goroutine.
package notification

import (
	"context"
	"time"

	"github.com/codedrop-io/codedrop/internal/domain/claim"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/infrastructure/cache"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/infrastructure/telegram"
	"github.com/codedrop-io/codedrop/internal/shared/goroutine"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

const defaultSendTimeout = 30 * time.Second

// PresenceCooldown suppresses repeated connect/disconnect notices for an
// account that flaps.
type PresenceCooldown interface {
	TryAcquire(ctx context.Context, kind cache.NotifyKind, accountID string) (bool, error)
}

// Recipient is who a notification is addressed to.
type Recipient = services.Profile

// Tally counts per-user notifications for one event.
type Tally struct {
	Sent    int
	Skipped int
	Failed  int
}

// Config configures a Dispatcher.
type Config struct {
	Enabled     bool
	AdminChatID int64
	SendTimeout time.Duration
}

// Dispatcher fans notifications out to the chat sink.
type Dispatcher struct {
	notifier    telegram.Notifier
	cooldown    PresenceCooldown
	enabled     bool
	adminChatID int64
	sendTimeout time.Duration
	launch      goroutine.Launcher
	logger      logger.Interface
}

// NewDispatcher creates a Dispatcher. cooldown may be nil, in which case
// every presence change is announced.
func NewDispatcher(cfg Config, notifier telegram.Notifier, cooldown PresenceCooldown, launch goroutine.Launcher, log logger.Interface) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if launch == nil {
		launch = goroutine.NewLauncher(log)
	}
	return &Dispatcher{
		notifier:    notifier,
		cooldown:    cooldown,
		enabled:     cfg.Enabled,
		adminChatID: cfg.AdminChatID,
		sendTimeout: cfg.SendTimeout,
		launch:      launch,
		logger:      log,
	}
}

func canReceive(r Recipient) bool {
	return r.NotifyEnabled && r.TelegramChatID != 0
}

// NotifyNewCode DMs every recipient who opted in and then sends the admin a
// summary including how many live sessions received the code.
func (d *Dispatcher) NotifyNewCode(c code.Code, recipients []Recipient, delivered int) {
	if !d.enabled {
		return
	}
	d.launch("notify-new-code", func() {
		d.DeliverNewCode(context.Background(), c, recipients, delivered)
	})
}

// DeliverNewCode is the synchronous body of NotifyNewCode.
func (d *Dispatcher) DeliverNewCode(ctx context.Context, c code.Code, recipients []Recipient, delivered int) Tally {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	var tally Tally
	text := telegram.BuildNewCodeMessage(c)
	seen := make(map[int64]struct{}, len(recipients))

	for _, r := range recipients {
		if !canReceive(r) {
			tally.Skipped++
			continue
		}
		// Several accounts may share one chat.
		if _, dup := seen[r.TelegramChatID]; dup {
			continue
		}
		seen[r.TelegramChatID] = struct{}{}

		if err := d.notifier.Send(ctx, r.TelegramChatID, text); err != nil {
			tally.Failed++
			continue
		}
		tally.Sent++
	}

	d.logger.Infow("new code notifications dispatched",
		"code", c.Token,
		"delivered", delivered,
		"dm_sent", tally.Sent,
		"dm_skipped", tally.Skipped,
		"dm_failed", tally.Failed,
	)

	if d.adminChatID != 0 {
		_ = d.notifier.Send(ctx, d.adminChatID, telegram.BuildAdminBroadcastMessage(c, delivered, tally.Sent, tally.Skipped))
	}
	return tally
}

// NotifyClaimResult tells the account, if opted in, and the admin how a
// claim was resolved.
func (d *Dispatcher) NotifyClaimResult(outcome claim.Outcome, r Recipient, value, source string) {
	if !d.enabled {
		return
	}
	d.launch("notify-claim-result", func() {
		d.DeliverClaimResult(context.Background(), outcome, r, value, source)
	})
}

// DeliverClaimResult is the synchronous body of NotifyClaimResult. It reports
// whether the account itself was notified.
func (d *Dispatcher) DeliverClaimResult(ctx context.Context, outcome claim.Outcome, r Recipient, value, source string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	username := displayName(r)
	success := outcome.Succeeded()

	sent := false
	if canReceive(r) {
		msg := telegram.BuildClaimResultMessage(outcome.Token, username, value, outcome.Reason, success)
		sent = d.notifier.Send(ctx, r.TelegramChatID, msg) == nil
	} else {
		d.logger.Debugw("claim result DM skipped",
			"account_id", r.AccountID,
			"code", outcome.Token,
		)
	}

	if d.adminChatID != 0 {
		msg := telegram.BuildAdminClaimResultMessage(outcome.Token, username, value, outcome.Reason, source, success, r.NotifyEnabled)
		_ = d.notifier.Send(ctx, d.adminChatID, msg)
	}
	return sent
}

// NotifyPresence announces an account coming online or going offline.
func (d *Dispatcher) NotifyPresence(r Recipient, online bool, totalOnline int) {
	if !d.enabled {
		return
	}
	d.launch("notify-presence", func() {
		d.DeliverPresence(context.Background(), r, online, totalOnline)
	})
}

// DeliverPresence is the synchronous body of NotifyPresence. It returns false
// when the notice was suppressed by the cooldown.
func (d *Dispatcher) DeliverPresence(ctx context.Context, r Recipient, online bool, totalOnline int) bool {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	kind := cache.NotifyKindDisconnected
	if online {
		kind = cache.NotifyKindConnected
	}

	if d.cooldown != nil {
		ok, err := d.cooldown.TryAcquire(ctx, kind, r.AccountID)
		if err != nil {
			// Fail open on cooldown errors.
			d.logger.Warnw("presence cooldown unavailable", "account_id", r.AccountID, "error", err)
		} else if !ok {
			d.logger.Debugw("presence notification suppressed by cooldown",
				"account_id", r.AccountID,
				"kind", kind,
			)
			return false
		}
	}

	username := displayName(r)
	if canReceive(r) {
		msg := telegram.BuildDisconnectedMessage(username)
		if online {
			msg = telegram.BuildConnectedMessage(username)
		}
		_ = d.notifier.Send(ctx, r.TelegramChatID, msg)
	}

	if d.adminChatID != 0 {
		_ = d.notifier.Send(ctx, d.adminChatID, telegram.BuildAdminPresenceMessage(username, online, r.NotifyEnabled, totalOnline))
	}
	return true
}

func displayName(r Recipient) string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.AccountID
}
