package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port" validate:"gte=1,lte=65535"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Database
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig configures the account tokens presented by clients on the live
// channel and on authenticated HTTP calls.
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" validate:"required"`
	TokenExpMinutes int    `mapstructure:"token_exp_minutes" validate:"gt=0"`
}

func (a *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenExpMinutes) * time.Minute
}

type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BotToken    string `mapstructure:"bot_token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
	APIBaseURL  string `mapstructure:"api_base_url"`
}

// LiveConfig holds the live channel timings.
type LiveConfig struct {
	SendQueueSize       int           `mapstructure:"send_queue_size" validate:"gt=0"`
	AuthTimeout         time.Duration `mapstructure:"auth_timeout" validate:"gt=0"`
	WriteWait           time.Duration `mapstructure:"write_wait"`
	PongWait            time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	PingPeriod          time.Duration `mapstructure:"ping_period" validate:"gt=0,ltfield=PongWait"`
	HealthSweepInterval time.Duration `mapstructure:"health_sweep_interval"`
	MaxMessageSize      int64         `mapstructure:"max_message_size"`
}

// RegistryConfig holds the connection registry liveness policy.
type RegistryConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" validate:"gt=0"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

type CacheConfig struct {
	Retention     time.Duration `mapstructure:"retention" validate:"gt=0"`
	EvictInterval time.Duration `mapstructure:"evict_interval"`
	MaxEntries    int           `mapstructure:"max_entries"`
}

type ClaimConfig struct {
	LockTTL           time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	LockSweepInterval time.Duration `mapstructure:"lock_sweep_interval"`
}

// TurboConfig holds the polling intervals advertised to fallback clients.
type TurboConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	TurboInterval  time.Duration `mapstructure:"turbo_interval" validate:"gt=0"`
	NormalInterval time.Duration `mapstructure:"normal_interval" validate:"gtefield=TurboInterval"`
}

// IngestConfig configures the ingestion relay between the feed worker and
// the server.
type IngestConfig struct {
	FeedSecret      string   `mapstructure:"feed_secret"`
	RedisBusEnabled bool     `mapstructure:"redis_bus_enabled"`
	KafkaBrokers    []string `mapstructure:"kafka_brokers"`
	KafkaTopic      string   `mapstructure:"kafka_topic"`
	KafkaGroupID    string   `mapstructure:"kafka_group_id"`
}

type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	IngestPerMinute  int  `mapstructure:"ingest_per_minute" validate:"gte=0"`
	ClaimPerMinute   int  `mapstructure:"claim_per_minute" validate:"gte=0"`
	ConnectPerMinute int  `mapstructure:"connect_per_minute" validate:"gte=0"`
}

type DirectoryConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}
