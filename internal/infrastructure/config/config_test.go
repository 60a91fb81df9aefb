package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 50*time.Millisecond, cfg.Turbo.TurboInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.Turbo.NormalInterval)
	assert.Equal(t, 10*time.Second, cfg.Claim.LockTTL)
	assert.Equal(t, 180*time.Second, cfg.Registry.HeartbeatTimeout)
	assert.Equal(t, 60*time.Second, cfg.Live.PongWait)
	assert.Equal(t, 30*time.Second, cfg.Live.PingPeriod)
	assert.Equal(t, 20, cfg.RateLimit.ConnectPerMinute)
	assert.Same(t, cfg, Get())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CODEDROP_TURBO_TURBO_INTERVAL", "25ms")
	t.Setenv("CODEDROP_ADMIN_API_KEY", "secret")

	cfg, err := Load("production")
	require.NoError(t, err)

	assert.Equal(t, 25*time.Millisecond, cfg.Turbo.TurboInterval)
	assert.Equal(t, "secret", cfg.Admin.APIKey)
	assert.Equal(t, "production", cfg.Server.Mode)
}

func TestLoad_LiveKeepaliveOverrides(t *testing.T) {
	t.Setenv("CODEDROP_LIVE_PONG_WAIT", "20s")
	t.Setenv("CODEDROP_LIVE_PING_PERIOD", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.Live.PongWait)
	assert.Equal(t, 5*time.Second, cfg.Live.PingPeriod)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "port", key: "CODEDROP_SERVER_PORT", val: "70000", want: "port"},
		{name: "driver", key: "CODEDROP_DATABASE_DRIVER", val: "postgres", want: "driver"},
		{name: "normal faster than turbo", key: "CODEDROP_TURBO_NORMAL_INTERVAL", val: "10ms", want: "normal_interval"},
		{name: "ping slower than pong wait", key: "CODEDROP_LIVE_PING_PERIOD", val: "90s", want: "ping_period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
