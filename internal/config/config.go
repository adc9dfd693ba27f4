// Package config loads process configuration from OCS_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the OCS_ENV value that enables production safeguards.
const EnvProduction = "production"

// Configuration errors
var (
	ErrMissingCSRFKey = errors.New("OCS_CSRF_KEY is required in production")
	ErrInvalidCSRFKey = errors.New("OCS_CSRF_KEY must be 64 hex characters (32 bytes)")
	ErrInvalidTimeout = errors.New("OCS_CONTENT_TIMEOUT_MS must be positive")
	ErrInvalidRate    = errors.New("OCS_RATE_LIMIT must be positive")
)

// Config holds all configuration for the server.
type Config struct {
	Env              string        `mapstructure:"OCS_ENV"`
	Addr             string        `mapstructure:"OCS_ADDR"`
	DBPath           string        `mapstructure:"OCS_DB_PATH"`
	ScheduleFile     string        `mapstructure:"OCS_SCHEDULE_FILE"`
	StaticDir        string        `mapstructure:"OCS_STATIC_DIR"`
	SiteURL          string        `mapstructure:"OCS_SITE_URL"`
	ContentGateway   string        `mapstructure:"OCS_CONTENT_GATEWAY"`
	ContentTimeoutMs int           `mapstructure:"OCS_CONTENT_TIMEOUT_MS"`
	ArticleCacheTTL  time.Duration `mapstructure:"OCS_ARTICLE_CACHE_TTL"`
	ArticleMaxAge    time.Duration `mapstructure:"OCS_ARTICLE_MAX_AGE"`
	AllowSpoofDate   bool          `mapstructure:"OCS_ALLOW_SPOOF_DATE"`
	CSRFKeyHex       string        `mapstructure:"OCS_CSRF_KEY"`
	RateLimit        int           `mapstructure:"OCS_RATE_LIMIT"`
	SlowRequestMs    int           `mapstructure:"OCS_SLOW_REQUEST_MS"`
	SlowQueryMs      int           `mapstructure:"OCS_SLOW_QUERY_MS"`
	LogLevel         string        `mapstructure:"OCS_LOG_LEVEL"`
}

var keys = []string{
	"OCS_ENV", "OCS_ADDR", "OCS_DB_PATH", "OCS_SCHEDULE_FILE", "OCS_STATIC_DIR", "OCS_SITE_URL",
	"OCS_CONTENT_GATEWAY", "OCS_CONTENT_TIMEOUT_MS", "OCS_ARTICLE_CACHE_TTL", "OCS_ARTICLE_MAX_AGE",
	"OCS_ALLOW_SPOOF_DATE", "OCS_CSRF_KEY", "OCS_RATE_LIMIT", "OCS_SLOW_REQUEST_MS",
	"OCS_SLOW_QUERY_MS", "OCS_LOG_LEVEL",
}

// Load reads configuration from the environment and validates it.
// PRE: a .env file, if any, has already been loaded into the environment
// POST: Returns a validated Config or the first validation error
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("OCS_ENV", "development")
	v.SetDefault("OCS_ADDR", ":8080")
	v.SetDefault("OCS_DB_PATH", "onchainsummer.db")
	v.SetDefault("OCS_SCHEDULE_FILE", "")
	v.SetDefault("OCS_STATIC_DIR", "static")
	v.SetDefault("OCS_SITE_URL", "https://onchainsummer.xyz")
	v.SetDefault("OCS_CONTENT_GATEWAY", "https://arweave.net")
	v.SetDefault("OCS_CONTENT_TIMEOUT_MS", 5000)
	v.SetDefault("OCS_ARTICLE_CACHE_TTL", "24h")
	v.SetDefault("OCS_ARTICLE_MAX_AGE", "720h")
	v.SetDefault("OCS_CSRF_KEY", "")
	v.SetDefault("OCS_RATE_LIMIT", 20)
	v.SetDefault("OCS_SLOW_REQUEST_MS", 200)
	v.SetDefault("OCS_SLOW_QUERY_MS", 50)
	v.SetDefault("OCS_LOG_LEVEL", "info")
	v.AutomaticEnv()

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// spoof dates are a preview tool; production opts in explicitly
	v.SetDefault("OCS_ALLOW_SPOOF_DATE", v.GetString("OCS_ENV") != EnvProduction)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether production safeguards apply.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// ContentTimeout returns the per-request content-network timeout.
func (c Config) ContentTimeout() time.Duration {
	return time.Duration(c.ContentTimeoutMs) * time.Millisecond
}

// SlowRequest returns the slow-request logging threshold.
func (c Config) SlowRequest() time.Duration {
	return time.Duration(c.SlowRequestMs) * time.Millisecond
}

// SlowQuery returns the slow-query logging threshold.
func (c Config) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// CSRFKey decodes the CSRF secret. ok is false when none is configured.
func (c Config) CSRFKey() (key []byte, ok bool, err error) {
	if c.CSRFKeyHex == "" {
		return nil, false, nil
	}
	key, err = hex.DecodeString(c.CSRFKeyHex)
	if err != nil || len(key) != 32 {
		return nil, false, ErrInvalidCSRFKey
	}
	return key, true, nil
}

// Validate checks the configuration for values the server cannot run with.
// PRE: none
// POST: Returns nil if valid, error otherwise
func (c Config) Validate() error {
	if _, ok, err := c.CSRFKey(); err != nil {
		return err
	} else if !ok && c.IsProduction() {
		return ErrMissingCSRFKey
	}
	if c.ContentTimeoutMs <= 0 {
		return ErrInvalidTimeout
	}
	if c.RateLimit <= 0 {
		return ErrInvalidRate
	}
	return nil
}
