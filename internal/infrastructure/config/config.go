package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/codedrop-io/codedrop/internal/shared/config"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

type Config struct {
	Server    sharedConfig.ServerConfig    `mapstructure:"server"`
	Database  sharedConfig.DatabaseConfig  `mapstructure:"database"`
	Logger    sharedConfig.LoggerConfig    `mapstructure:"logger"`
	Redis     sharedConfig.RedisConfig     `mapstructure:"redis"`
	Auth      sharedConfig.AuthConfig      `mapstructure:"auth"`
	Admin     sharedConfig.AdminConfig     `mapstructure:"admin"`
	Telegram  sharedConfig.TelegramConfig  `mapstructure:"telegram"`
	Live      sharedConfig.LiveConfig      `mapstructure:"live"`
	Registry  sharedConfig.RegistryConfig  `mapstructure:"registry"`
	Cache     sharedConfig.CacheConfig     `mapstructure:"cache"`
	Claim     sharedConfig.ClaimConfig     `mapstructure:"claim"`
	Turbo     sharedConfig.TurboConfig     `mapstructure:"turbo"`
	Ingest    sharedConfig.IngestConfig    `mapstructure:"ingest"`
	RateLimit sharedConfig.RateLimitConfig `mapstructure:"rate_limit"`
	Directory sharedConfig.DirectoryConfig `mapstructure:"directory"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables.
// A missing config file is not an error: defaults plus CODEDROP_* env vars apply.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	v.SetEnvPrefix("CODEDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := utils.ValidateStruct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "codedrop.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.token_exp_minutes", 60*24*30)

	v.SetDefault("admin.api_key", "")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")

	v.SetDefault("live.send_queue_size", 256)
	v.SetDefault("live.auth_timeout", "10s")
	v.SetDefault("live.write_wait", "10s")
	v.SetDefault("live.pong_wait", "60s")
	v.SetDefault("live.ping_period", "30s")
	v.SetDefault("live.health_sweep_interval", "30s")
	v.SetDefault("live.max_message_size", 64*1024)

	v.SetDefault("registry.heartbeat_timeout", "180s")
	v.SetDefault("registry.grace_period", "5s")
	v.SetDefault("registry.sweep_interval", "30s")

	v.SetDefault("cache.retention", "5m")
	v.SetDefault("cache.evict_interval", "60s")
	v.SetDefault("cache.max_entries", 500)

	v.SetDefault("claim.lock_ttl", "10s")
	v.SetDefault("claim.lock_sweep_interval", "30s")

	v.SetDefault("turbo.enabled", false)
	v.SetDefault("turbo.turbo_interval", "50ms")
	v.SetDefault("turbo.normal_interval", "200ms")

	v.SetDefault("ingest.feed_secret", "change-me-in-production")
	v.SetDefault("ingest.redis_bus_enabled", true)
	v.SetDefault("ingest.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("ingest.kafka_topic", "codedrop.feed.messages")
	v.SetDefault("ingest.kafka_group_id", "codedrop-ingest")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.ingest_per_minute", 600)
	v.SetDefault("rate_limit.claim_per_minute", 120)
	v.SetDefault("rate_limit.connect_per_minute", 20)

	v.SetDefault("directory.cache_size", 4096)
	v.SetDefault("directory.cache_ttl", "5m")
}
