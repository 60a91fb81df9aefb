// Package broadcast turns ingested text into codes and pushes them to every
// live session.
package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codedrop-io/codedrop/internal/application/notification"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/goroutine"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// CodeStore is the recent-code cache and dedup authority.
type CodeStore interface {
	Put(c code.Code) bool
	Snapshot() []code.Code
	Enrich(token string, meta code.Metadata) (code.Code, bool)
	Delete(token string) bool
}

// SessionDirectory exposes the live sessions and online accounts.
type SessionDirectory interface {
	LiveSessions() []services.LiveSession
	Online() []services.Connection
}

// NewCodeNotifier receives codes after they have been pushed.
type NewCodeNotifier interface {
	NotifyNewCode(c code.Code, recipients []notification.Recipient, delivered int)
}

// FanoutReport counts one pass over the live sessions.
type FanoutReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// IngestResult describes what happened to one piece of ingested text.
type IngestResult struct {
	Detected bool
	Accepted bool
	Code     *code.Code
	Fanout   FanoutReport
}

// Broadcaster owns the ingest path: extract, dedup, push, then defer the
// slow bookkeeping.
type Broadcaster struct {
	store    CodeStore
	sessions SessionDirectory
	notifier NewCodeNotifier
	turbo    *TurboSwitch
	now      shared.Clock
	launch   goroutine.Launcher
	logger   logger.Interface

	// fanoutMu serializes dedup and fan-out so codes go out in ingest order.
	fanoutMu sync.Mutex
}

// NewBroadcaster creates a Broadcaster. notifier may be nil.
func NewBroadcaster(
	store CodeStore,
	sessions SessionDirectory,
	notifier NewCodeNotifier,
	turbo *TurboSwitch,
	clock shared.Clock,
	launch goroutine.Launcher,
	log logger.Interface,
) *Broadcaster {
	if launch == nil {
		launch = goroutine.NewLauncher(log)
	}
	if turbo == nil {
		turbo = NewTurboSwitch(false, 0, 0)
	}
	return &Broadcaster{
		store:    store,
		sessions: sessions,
		notifier: notifier,
		turbo:    turbo,
		now:      clock.OrSystem(),
		launch:   launch,
		logger:   log,
	}
}

// Ingest extracts a code from raw text and broadcasts it if it is new. Only
// the token is extracted before the push; metadata is filled in afterwards.
// A miss or a duplicate is not an error.
func (b *Broadcaster) Ingest(ctx context.Context, rawText string, source code.Source) (IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return IngestResult{}, err
	}
	if strings.TrimSpace(rawText) == "" {
		return IngestResult{}, nil
	}

	token, ok := code.ExtractToken(rawText)
	if !ok {
		b.logger.Debugw("no code found in ingested text", "source", source, "length", len(rawText))
		return IngestResult{}, nil
	}

	c, err := code.NewCode(token, source, b.now(), code.Metadata{})
	if err != nil {
		return IngestResult{}, fmt.Errorf("build ingested code: %w", err)
	}

	report, accepted := b.publish(*c)
	result := IngestResult{Detected: true, Accepted: accepted, Code: c, Fanout: report}
	if !accepted {
		b.logger.Infow("duplicate code ignored", "code", token, "source", source)
		return result, nil
	}

	b.launch("broadcast-enrich", func() {
		enriched := *c
		if meta := code.ExtractMetadata(rawText); !meta.IsEmpty() {
			if updated, ok := b.store.Enrich(c.Token, meta); ok {
				enriched = updated
			}
		}
		b.notify(enriched, report.Delivered)
	})
	return result, nil
}

// IngestExplicit broadcasts a fully structured code, typically entered by an
// operator. It returns code.ErrDuplicateCode if the token is already cached.
func (b *Broadcaster) IngestExplicit(ctx context.Context, c code.Code) (FanoutReport, error) {
	if err := ctx.Err(); err != nil {
		return FanoutReport{}, err
	}
	if !code.IsValidToken(c.Token) {
		return FanoutReport{}, fmt.Errorf("%w: %q", code.ErrInvalidToken, c.Token)
	}
	if c.ObservedAt.IsZero() {
		c.ObservedAt = b.now()
	}
	if c.Source == "" {
		c.Source = code.SourceAdmin
	}

	report, accepted := b.publish(c)
	if !accepted {
		return FanoutReport{}, fmt.Errorf("%w: %s", code.ErrDuplicateCode, c.Token)
	}

	b.launch("broadcast-notify", func() { b.notify(c, report.Delivered) })
	return report, nil
}

// publish stores c and, if it is new, pushes it to every live session.
func (b *Broadcaster) publish(c code.Code) (FanoutReport, bool) {
	payload := live.MustEncode(live.NewCode{Code: live.FromCode(c)})

	b.fanoutMu.Lock()
	defer b.fanoutMu.Unlock()

	if !b.store.Put(c) {
		return FanoutReport{}, false
	}

	start := time.Now()
	report := b.fanOut(payload)
	b.logger.Infow("code broadcast",
		"code", c.Token,
		"source", c.Source,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"duration", time.Since(start),
	)
	return report, true
}

// fanOut sends payload to each live session. A failing session is skipped;
// it never stops delivery to the rest. Callers hold fanoutMu.
func (b *Broadcaster) fanOut(payload []byte) FanoutReport {
	sessions := b.sessions.LiveSessions()
	report := FanoutReport{Attempted: len(sessions)}

	for _, ls := range sessions {
		if err := b.sendTo(ls, payload); err != nil {
			report.Failed++
			b.logger.Debugw("live send failed",
				"account_id", ls.AccountID,
				"session_id", ls.Session.ID(),
				"error", err,
			)
			continue
		}
		report.Delivered++
	}
	return report
}

func (b *Broadcaster) sendTo(ls services.LiveSession, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return ls.Session.Send(payload)
}

func (b *Broadcaster) notify(c code.Code, delivered int) {
	if b.notifier == nil {
		return
	}
	online := b.sessions.Online()
	recipients := make([]notification.Recipient, 0, len(online))
	for _, conn := range online {
		recipients = append(recipients, conn.Profile)
	}
	b.notifier.NotifyNewCode(c, recipients, delivered)
}

// Remove drops a code from the cache so it is no longer served or deduped.
func (b *Broadcaster) Remove(token string) bool {
	b.fanoutMu.Lock()
	defer b.fanoutMu.Unlock()

	removed := b.store.Delete(token)
	if removed {
		b.logger.Infow("code removed", "code", token)
	}
	return removed
}

// Snapshot returns the cached codes, newest first.
func (b *Broadcaster) Snapshot() []code.Code {
	return b.store.Snapshot()
}

// Settings returns the current polling recommendation.
func (b *Broadcaster) Settings() TurboSettings {
	return b.turbo.Settings()
}

// SetTurbo changes the polling recommendation and announces it to every live
// session. The live push path is unaffected.
func (b *Broadcaster) SetTurbo(enabled bool) (TurboSettings, FanoutReport) {
	b.fanoutMu.Lock()
	defer b.fanoutMu.Unlock()

	settings := b.turbo.Set(enabled)
	report := b.fanOut(live.MustEncode(live.TurboState{
		Enabled:        settings.Enabled,
		PollIntervalMs: settings.PollInterval.Milliseconds(),
	}))

	b.logger.Infow("turbo mode changed",
		"enabled", settings.Enabled,
		"poll_interval", settings.PollInterval,
		"delivered", report.Delivered,
	)
	return settings, report
}

// Attach runs fn with the current snapshot and settings while no code can be
// published. A session that enqueues its snapshot and registers itself inside
// fn sees every code exactly once: either in the snapshot or as a push.
func (b *Broadcaster) Attach(fn func(snapshot []code.Code, settings TurboSettings)) {
	b.fanoutMu.Lock()
	defer b.fanoutMu.Unlock()

	fn(b.store.Snapshot(), b.turbo.Settings())
}
