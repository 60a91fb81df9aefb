package broadcast

import (
	"sync/atomic"
	"time"
)

const (
	DefaultTurboInterval  = 50 * time.Millisecond
	DefaultNormalInterval = 200 * time.Millisecond
)

// TurboSettings is the polling recommendation advertised to clients.
type TurboSettings struct {
	Enabled      bool
	PollInterval time.Duration
}

// TurboSwitch holds the broadcast-wide turbo flag.
type TurboSwitch struct {
	enabled        atomic.Bool
	turboInterval  time.Duration
	normalInterval time.Duration
}

// NewTurboSwitch creates a switch. Non-positive intervals use the defaults.
func NewTurboSwitch(enabled bool, turboInterval, normalInterval time.Duration) *TurboSwitch {
	if turboInterval <= 0 {
		turboInterval = DefaultTurboInterval
	}
	if normalInterval <= 0 {
		normalInterval = DefaultNormalInterval
	}
	s := &TurboSwitch{turboInterval: turboInterval, normalInterval: normalInterval}
	s.enabled.Store(enabled)
	return s
}

// Set changes the flag and returns the resulting settings.
func (s *TurboSwitch) Set(enabled bool) TurboSettings {
	s.enabled.Store(enabled)
	return s.settingsFor(enabled)
}

// Settings returns the current settings.
func (s *TurboSwitch) Settings() TurboSettings {
	return s.settingsFor(s.enabled.Load())
}

func (s *TurboSwitch) settingsFor(enabled bool) TurboSettings {
	if enabled {
		return TurboSettings{Enabled: true, PollInterval: s.turboInterval}
	}
	return TurboSettings{Enabled: false, PollInterval: s.normalInterval}
}
