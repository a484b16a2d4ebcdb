// Package config loads settings from an optional YAML file, environment
// variables (SPLITLEDGER_SERVER_PORT, SPLITLEDGER_DATABASE_DSN, ...) and
// command-line flags bound by the CLI, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SPLITLEDGER"

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Activity    ActivityConfig    `mapstructure:"activity"`
	Settlements SettlementsConfig `mapstructure:"settlements"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// DatabaseConfig selects the backend. Path is used by sqlite, DSN by
// postgres and pgx.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	List     string `mapstructure:"list"`
	Channel  string `mapstructure:"channel"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// AuthConfig holds the HMAC secret for bearer tokens. When empty the API
// trusts the X-Party-ID header, which is only meant for local use.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ActivityConfig struct {
	Buffer    int `mapstructure:"buffer"`
	FeedLimit int `mapstructure:"feed_limit"`
}

// SettlementsConfig drives the pending settlement sweeper. A zero
// SweepInterval disables it.
type SettlementsConfig struct {
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// NewViper returns a viper instance with defaults and environment binding.
// The CLI binds its flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "splitledger.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.list", "splitledger:activity")
	v.SetDefault("redis.channel", "splitledger:events")
	v.SetDefault("redis.max_len", 1000)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("activity.buffer", 256)
	v.SetDefault("activity.feed_limit", 50)

	v.SetDefault("settlements.pending_timeout", 24*time.Hour)
	v.SetDefault("settlements.sweep_interval", 10*time.Minute)
}

// Load reads path (optional) into v and decodes the result. A missing file
// is an error only when path was given explicitly.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("splitledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/splitledger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres", "pgx":
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for %s", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Logging.Format))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Activity.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("activity.buffer must be positive, got %d", c.Activity.Buffer))
	}
	if c.Settlements.SweepInterval > 0 && c.Settlements.PendingTimeout <= 0 {
		errs = append(errs, errors.New("settlements.pending_timeout must be positive when the sweeper runs"))
	}

	return errors.Join(errs...)
}
