// Package config loads pairs client settings from a YAML file and PAIRS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/pairs-client/pkg/client"
	"github.com/Sternrassler/pairs-client/pkg/logging"
	"github.com/Sternrassler/pairs-client/pkg/pairs"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAIRS_CLIENT_BASE_URL.
const EnvPrefix = "PAIRS"

// Config holds all application configuration
type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Server  ServerConfig  `mapstructure:"server"`
	Browse  BrowseConfig  `mapstructure:"browse"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ClientConfig holds the upstream endpoint and request policy
type ClientConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst        int           `mapstructure:"rate_burst"`
	MaxRetries       int           `mapstructure:"max_retries"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"` // 0 disables
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig enables the page cache and shared rate limit state
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig holds the proxy listener settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BrowseConfig holds the defaults of the browse command
type BrowseConfig struct {
	UserID string `mapstructure:"user_id"`
	Limit  int    `mapstructure:"limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	clientDefaults := client.DefaultConfig("http://localhost:8000", "pairs-client/0.1.0")

	return &Config{
		Client: ClientConfig{
			BaseURL:          clientDefaults.BaseURL,
			UserAgent:        clientDefaults.UserAgent,
			Timeout:          clientDefaults.Timeout,
			RateLimit:        clientDefaults.RateLimit,
			RateBurst:        clientDefaults.RateBurst,
			MaxRetries:       clientDefaults.MaxRetries,
			InitialBackoff:   clientDefaults.InitialBackoff,
			BreakerThreshold: clientDefaults.BreakerThreshold,
			BreakerTimeout:   clientDefaults.BreakerTimeout,
			CacheTTL:         clientDefaults.CacheTTL,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Browse: BrowseConfig{
			UserID: pairs.DefaultUserID,
			Limit:  pairs.DefaultLimit,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultConfigPath returns the per-user config directory
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pairs")
}

// Load reads configuration from file and environment. With an empty path
// it looks for pairs.yaml in the working directory and the user config
// directory; a missing file there is not an error. An explicit path must
// exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pairs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := defaultConfigPath(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment-only values unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("client.base_url", cfg.Client.BaseURL)
	v.SetDefault("client.user_agent", cfg.Client.UserAgent)
	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("client.rate_limit", cfg.Client.RateLimit)
	v.SetDefault("client.rate_burst", cfg.Client.RateBurst)
	v.SetDefault("client.max_retries", cfg.Client.MaxRetries)
	v.SetDefault("client.initial_backoff", cfg.Client.InitialBackoff)
	v.SetDefault("client.breaker_threshold", cfg.Client.BreakerThreshold)
	v.SetDefault("client.breaker_timeout", cfg.Client.BreakerTimeout)
	v.SetDefault("client.cache_ttl", cfg.Client.CacheTTL)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("browse.user_id", cfg.Browse.UserID)
	v.SetDefault("browse.limit", cfg.Browse.Limit)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.file", cfg.Logging.File)
}

// Validate checks values New would reject and ranges the loader can catch
// early.
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url is required")
	}
	if c.Client.UserAgent == "" {
		return fmt.Errorf("client.user_agent is required")
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must be >= 0 (got %d)", c.Client.MaxRetries)
	}
	if c.Client.RateLimit < 0 {
		return fmt.Errorf("client.rate_limit must be >= 0 (got %v)", c.Client.RateLimit)
	}
	if c.Browse.Limit < 0 || c.Browse.Limit > pairs.MaxLimit {
		return fmt.Errorf("browse.limit must be between 0 and %d (got %d)", pairs.MaxLimit, c.Browse.Limit)
	}
	return nil
}

// NewRedisClient returns a Redis client, or nil when Redis is disabled.
func (c *Config) NewRedisClient() *redis.Client {
	if !c.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// ClientConfig converts the loaded settings into a client.Config.
func (c *Config) ClientConfig(redisClient *redis.Client) client.Config {
	return client.Config{
		BaseURL:          c.Client.BaseURL,
		UserAgent:        c.Client.UserAgent,
		Timeout:          c.Client.Timeout,
		Redis:            redisClient,
		CacheTTL:         c.Client.CacheTTL,
		RateLimit:        c.Client.RateLimit,
		RateBurst:        c.Client.RateBurst,
		MaxRetries:       c.Client.MaxRetries,
		InitialBackoff:   c.Client.InitialBackoff,
		BreakerThreshold: c.Client.BreakerThreshold,
		BreakerTimeout:   c.Client.BreakerTimeout,
	}
}

// LoggingConfig converts the logging section into a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.Logging.Level))
	cfg.Pretty = c.Logging.Pretty
	cfg.File = c.Logging.File
	return cfg
}
