// Package config loads client settings from defaults, an optional config
// file, a .env file and RENTDESK_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"rentdesk.org/internal/obs"
)

// EnvPrefix prefixes every environment override, e.g. RENTDESK_API_BASE_URL.
const EnvPrefix = "RENTDESK"

// Config is the complete client configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
}

// APIConfig points the transport at the backend.
type APIConfig struct {
	BaseURL   string          `mapstructure:"base_url"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles outgoing requests. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CacheConfig controls how long unused reads stay warm.
type CacheConfig struct {
	KeepUnused time.Duration `mapstructure:"keep_unused"`
	MaxUnused  int           `mapstructure:"max_unused"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

type CheckoutConfig struct {
	VerifyPath string `mapstructure:"verify_path"`
}

// Options says where to look. Empty fields use the defaults.
type Options struct {
	// ConfigFile is an explicit file; otherwise .rentdesk.{yaml,toml,json}
	// is searched in the working directory and $HOME/.config/rentdesk.
	ConfigFile string
	// EnvFiles are loaded with godotenv before reading the environment.
	// Missing files are ignored. Defaults to ".env".
	EnvFiles []string
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Load never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := viper.New()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(".rentdesk")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/rentdesk")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 0)
	v.SetDefault("api.rate_limit.rps", 0)
	v.SetDefault("api.rate_limit.burst", 1)
	v.SetDefault("cache.keep_unused", 0)
	v.SetDefault("cache.max_unused", 256)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", obs.FormatText)
	v.SetDefault("output.colors", true)
	v.SetDefault("checkout.verify_path", "/payment/verify")
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute URL", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme %q not supported", u.Scheme)
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must not be negative")
	}
	if c.API.RateLimit.RPS < 0 {
		return errors.New("api.rate_limit.rps must not be negative")
	}
	if c.Cache.KeepUnused < 0 {
		return errors.New("cache.keep_unused must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not a level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case obs.FormatText, obs.FormatJSON:
	default:
		return fmt.Errorf("logging.format %q must be %s or %s", c.Logging.Format, obs.FormatText, obs.FormatJSON)
	}
	if !strings.HasPrefix(c.Checkout.VerifyPath, "/") {
		return fmt.Errorf("checkout.verify_path %q must start with /", c.Checkout.VerifyPath)
	}
	return nil
}
