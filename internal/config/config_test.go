package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var validKey = strings.Repeat("ab", 32)

// clearEnv blanks every OCS_* key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies development defaults.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	// an empty OCS_ENV must still fall back to development
	t.Setenv("OCS_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IsProduction() {
		t.Error("IsProduction = true for development")
	}
	if cfg.ContentGateway != "https://arweave.net" {
		t.Errorf("ContentGateway = %q", cfg.ContentGateway)
	}
	if cfg.ContentTimeout() != 5*time.Second {
		t.Errorf("ContentTimeout = %v", cfg.ContentTimeout())
	}
	if cfg.ArticleCacheTTL != 24*time.Hour {
		t.Errorf("ArticleCacheTTL = %v", cfg.ArticleCacheTTL)
	}
	if !cfg.AllowSpoofDate {
		t.Error("AllowSpoofDate = false in development")
	}
}

// TestLoad_Overrides verifies environment values win over defaults.
func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OCS_ENV", "staging")
	t.Setenv("OCS_ADDR", ":9090")
	t.Setenv("OCS_CONTENT_TIMEOUT_MS", "1500")
	t.Setenv("OCS_ARTICLE_CACHE_TTL", "90m")
	t.Setenv("OCS_ALLOW_SPOOF_DATE", "false")
	t.Setenv("OCS_RATE_LIMIT", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.RateLimit != 5 {
		t.Errorf("Addr=%q RateLimit=%d", cfg.Addr, cfg.RateLimit)
	}
	if cfg.ContentTimeout() != 1500*time.Millisecond {
		t.Errorf("ContentTimeout = %v", cfg.ContentTimeout())
	}
	if cfg.ArticleCacheTTL != 90*time.Minute {
		t.Errorf("ArticleCacheTTL = %v", cfg.ArticleCacheTTL)
	}
	if cfg.AllowSpoofDate {
		t.Error("AllowSpoofDate = true despite override")
	}
}

// TestLoad_Production verifies production requires a CSRF key and disables spoof dates by default.
func TestLoad_Production(t *testing.T) {
	clearEnv(t)
	t.Setenv("OCS_ENV", "production")

	if _, err := Load(); !errors.Is(err, ErrMissingCSRFKey) {
		t.Fatalf("err = %v, want ErrMissingCSRFKey", err)
	}

	t.Setenv("OCS_CSRF_KEY", validKey)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AllowSpoofDate {
		t.Error("AllowSpoofDate defaulted on in production")
	}
	key, ok, err := cfg.CSRFKey()
	if err != nil || !ok || len(key) != 32 {
		t.Errorf("CSRFKey = %d bytes, %v, %v", len(key), ok, err)
	}
}

// TestConfig_Validate covers rejected values.
func TestConfig_Validate(t *testing.T) {
	base := Config{Env: "development", ContentTimeoutMs: 1000, RateLimit: 10}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "short csrf key", mutate: func(c *Config) { c.CSRFKeyHex = "abcd" }, wantErr: ErrInvalidCSRFKey},
		{name: "non-hex csrf key", mutate: func(c *Config) { c.CSRFKeyHex = strings.Repeat("zz", 32) }, wantErr: ErrInvalidCSRFKey},
		{name: "zero timeout", mutate: func(c *Config) { c.ContentTimeoutMs = 0 }, wantErr: ErrInvalidTimeout},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit = 0 }, wantErr: ErrInvalidRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
