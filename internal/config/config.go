// Package config handles configuration loading and validation for the
// p3d mining proxy.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects the proxy's operating mode.
type Mode string

const (
	ModeSolo Mode = "solo"
	ModePool Mode = "pool"
)

// Config holds all configuration for the proxy.
type Config struct {
	Pool     PoolConfig     `mapstructure:"pool"`
	Node     NodeConfig     `mapstructure:"node"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Mining   MiningConfig   `mapstructure:"mining"`
	Security SecurityConfig `mapstructure:"security"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	NewRelic NewRelicConfig `mapstructure:"newrelic"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
}

// NotifyConfig defines optional Discord/Telegram webhook notifications.
type NotifyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	ProxyName    string `mapstructure:"proxy_name"`
}

// PoolConfig defines this member's pool identity, set via the `run`
// subcommand's flags.
type PoolConfig struct {
	PoolID    string `mapstructure:"pool_id"`
	MemberID  string `mapstructure:"member_id"`
	MemberKey string `mapstructure:"member_key"` // hex mini-secret
	Mode      Mode   `mapstructure:"mode"`
	// RigName identifies this proxy's single rig in ledger records and
	// retargeting; the proxy serves one miner identity per process.
	RigName string `mapstructure:"rig_name"`
}

// NodeConfig defines upstream proof-of-scan node connection settings.
// Upstreams, when set, lets the proxy fail over across multiple nodes;
// URL/Timeout alone fall back to a single-node configuration.
type NodeConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`

	Upstreams           []UpstreamConfig `mapstructure:"upstreams"`
	HealthCheckInterval time.Duration    `mapstructure:"health_check_interval"`
	HealthCheckTimeout  time.Duration    `mapstructure:"health_check_timeout"`
	MaxFailures         int              `mapstructure:"max_failures"`
	RecoveryThreshold   int              `mapstructure:"recovery_threshold"`
}

// UpstreamConfig names one node in a multi-node failover set.
type UpstreamConfig struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Weight  int           `mapstructure:"weight"`
}

// RedisConfig defines the share-ledger Redis connection.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProxyConfig defines the miner-facing RpcFacade bind address and algo.
type ProxyConfig struct {
	Address string `mapstructure:"address"`
	Algo    string `mapstructure:"algo"`
}

// MiningConfig holds difficulty-controller settings. They are loaded and
// validated only; internal/difficulty uses its own package constants and
// does not read these values.
type MiningConfig struct {
	InitialDifficulty uint64 `mapstructure:"initial_difficulty"`
	Window            int    `mapstructure:"window"`
	MinSamples        int    `mapstructure:"min_samples"`
	TargetBlockTimeMs int64  `mapstructure:"target_block_time_ms"`
}

// SecurityConfig defines abuse-protection settings, consumed by internal/policy.
type SecurityConfig struct {
	BanningEnabled   bool          `mapstructure:"banning_enabled"`
	BanTimeout       time.Duration `mapstructure:"ban_timeout"`
	RateLimitEnabled bool          `mapstructure:"rate_limit_enabled"`
	ConnectionLimit  int32         `mapstructure:"connection_limit"`
}

// ProfilingConfig defines the optional pprof HTTP server.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// NewRelicConfig defines optional APM reporting.
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from an optional file, environment variables,
// and viper defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/p3dproxy")
	}

	v.SetEnvPrefix("P3DPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.url", "http://127.0.0.1:8545")
	v.SetDefault("node.timeout", "10s")

	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("proxy.address", "127.0.0.1:3333")
	v.SetDefault("proxy.algo", "grid2d_v3.1")

	v.SetDefault("pool.mode", string(ModeSolo))
	v.SetDefault("pool.rig_name", "default")

	v.SetDefault("mining.initial_difficulty", 2000000)
	v.SetDefault("mining.window", 60)
	v.SetDefault("mining.min_samples", 6)
	v.SetDefault("mining.target_block_time_ms", 60000)

	v.SetDefault("security.banning_enabled", true)
	v.SetDefault("security.ban_timeout", "30m")
	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.connection_limit", 10)

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("newrelic.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Node.URL == "" {
		return fmt.Errorf("node.url is required")
	}

	if c.Pool.Mode != ModeSolo && c.Pool.Mode != ModePool {
		return fmt.Errorf("pool.mode must be %q or %q", ModeSolo, ModePool)
	}

	if c.Pool.Mode == ModePool {
		if c.Pool.PoolID == "" {
			return fmt.Errorf("pool.pool_id is required in pool mode")
		}
		if c.Pool.MemberID == "" {
			return fmt.Errorf("pool.member_id is required in pool mode")
		}
		if c.Pool.MemberKey == "" {
			return fmt.Errorf("pool.member_key is required in pool mode")
		}
	}

	if c.Mining.Window <= 0 {
		return fmt.Errorf("mining.window must be positive")
	}
	if c.Mining.MinSamples <= 0 || c.Mining.MinSamples > c.Mining.Window {
		return fmt.Errorf("mining.min_samples must be positive and <= mining.window")
	}

	return nil
}

// IsPoolMode reports whether the proxy runs in POOL mode.
func (c *Config) IsPoolMode() bool { return c.Pool.Mode == ModePool }

// IsSoloMode reports whether the proxy runs in SOLO mode.
func (c *Config) IsSoloMode() bool { return c.Pool.Mode == ModeSolo }
