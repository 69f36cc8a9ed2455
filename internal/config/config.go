// Package config loads configuration for the search proxy and shells.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FLICKR_SEARCH_FLICKR_API_KEY.
const EnvPrefix = "FLICKR_SEARCH"

// ConfigFileEnv names the environment variable holding an explicit config file path.
const ConfigFileEnv = "FLICKR_SEARCH_CONFIG"

// Config represents the complete configuration.
type Config struct {
	Flickr FlickrConfig `mapstructure:"flickr"`
	Search SearchConfig `mapstructure:"search"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// FlickrConfig contains REST API settings
type FlickrConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	HourlyQuota       int           `mapstructure:"hourly_quota"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SearchConfig contains pagination settings
type SearchConfig struct {
	PerPage  int           `mapstructure:"per_page"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// CacheConfig contains response cache settings. An empty RedisAddr keeps
// the cache in memory and the quota local.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	MemorySize    int           `mapstructure:"memory_size"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig contains search proxy settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing priority. path may be empty, in which case
// ConfigFileEnv is consulted and then ./flickr-search.yaml and
// ./configs/flickr-search.yaml are tried.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("flickr-search")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			// A missing file is fine, defaults and env vars apply
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Flickr defaults
	v.SetDefault("flickr.endpoint", "https://api.flickr.com/services/rest/")
	v.SetDefault("flickr.api_key", "")
	v.SetDefault("flickr.timeout", "10s")
	v.SetDefault("flickr.max_retries", 2)
	v.SetDefault("flickr.initial_backoff", "250ms")
	v.SetDefault("flickr.hourly_quota", 3600)
	v.SetDefault("flickr.requests_per_second", 5.0)

	// Search defaults
	v.SetDefault("search.per_page", 10)
	v.SetDefault("search.debounce", "300ms")

	// Cache defaults
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.memory_size", 256)
	v.SetDefault("cache.ttl", "5m")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
}

// Validate checks that the configuration can start the client.
func (c *Config) Validate() error {
	if c.Flickr.APIKey == "" {
		return fmt.Errorf("flickr.api_key is required (set %s_FLICKR_API_KEY)", EnvPrefix)
	}

	u, err := url.Parse(c.Flickr.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("flickr.endpoint must be an absolute http(s) URL (got %q)", c.Flickr.Endpoint)
	}

	if c.Flickr.Timeout <= 0 {
		return fmt.Errorf("flickr.timeout must be > 0 (got %s)", c.Flickr.Timeout)
	}
	if c.Flickr.MaxRetries < 0 {
		return fmt.Errorf("flickr.max_retries must be >= 0 (got %d)", c.Flickr.MaxRetries)
	}
	if c.Flickr.HourlyQuota <= 0 {
		return fmt.Errorf("flickr.hourly_quota must be > 0 (got %d)", c.Flickr.HourlyQuota)
	}
	if c.Flickr.RequestsPerSecond < 0 {
		return fmt.Errorf("flickr.requests_per_second must be >= 0 (got %g)", c.Flickr.RequestsPerSecond)
	}

	// Flickr caps per_page at 500
	if c.Search.PerPage < 1 || c.Search.PerPage > 500 {
		return fmt.Errorf("search.per_page must be between 1 and 500 (got %d)", c.Search.PerPage)
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must be >= 0 (got %s)", c.Search.Debounce)
	}

	if c.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache.memory_size must be > 0 (got %d)", c.Cache.MemorySize)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0 (got %s)", c.Cache.TTL)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}

	return nil
}
