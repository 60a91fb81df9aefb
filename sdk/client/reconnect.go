package client

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectConfig holds reconnection strategy parameters.
type ReconnectConfig struct {
	// InitialInterval is the first retry delay (default: 2s)
	InitialInterval time.Duration

	// MaxInterval caps a single retry delay (default: 30s)
	MaxInterval time.Duration

	// Multiplier is the exponential backoff multiplier (default: 1.5)
	Multiplier float64

	// RandomizationFactor adds jitter to prevent thundering herd (default: 0)
	RandomizationFactor float64

	// MaxAttempts is how many consecutive reconnects are tried before the
	// client falls back to polling (default: 10)
	MaxAttempts int
}

// DefaultReconnectConfig returns the default reconnection configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
		MaxAttempts:     10,
	}
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	d := DefaultReconnectConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// ReconnectPolicy decides whether and when to reconnect. It holds no timers:
// callers ask for the next delay and do the waiting themselves.
type ReconnectPolicy struct {
	cfg      ReconnectConfig
	backoff  *backoff.ExponentialBackOff
	attempts int
}

// NewReconnectPolicy creates a policy in its initial state.
func NewReconnectPolicy(cfg ReconnectConfig) *ReconnectPolicy {
	cfg = cfg.withDefaults()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = cfg.MaxInterval
	expBackoff.Multiplier = cfg.Multiplier
	expBackoff.RandomizationFactor = cfg.RandomizationFactor
	expBackoff.Reset()

	return &ReconnectPolicy{
		cfg:     cfg,
		backoff: expBackoff,
	}
}

// Next records a failed connection and returns the delay before the next
// attempt. ok is false once MaxAttempts consecutive attempts are used up.
func (p *ReconnectPolicy) Next() (delay time.Duration, ok bool) {
	if p.Exhausted() {
		return 0, false
	}
	delay = p.backoff.NextBackOff()
	if delay == backoff.Stop {
		p.attempts = p.cfg.MaxAttempts
		return 0, false
	}
	p.attempts++
	return delay, true
}

// Attempts returns the number of reconnects scheduled since the last Reset.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}

// Exhausted reports whether the client should give up on the live channel.
func (p *ReconnectPolicy) Exhausted() bool {
	return p.attempts >= p.cfg.MaxAttempts
}

// Reset returns the policy to its initial state after a successful
// authentication.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
	p.backoff.Reset()
}
