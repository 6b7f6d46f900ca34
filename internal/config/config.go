package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/verdantbox/admin-api/internal/security"
	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	// ErrMissingSecret indicates no session signing secret was supplied
	// in a production environment. This is fatal at startup.
	ErrMissingSecret = errors.New("config: session signing secret is required in production")
)

// AppConfig is the root application configuration.
type AppConfig struct {
	Env    string `yaml:"env"`
	Listen string `yaml:"listen"`

	DatabaseDSN string `yaml:"database_dsn"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	Session  SessionConfig           `yaml:"session"`
	WebAuthn security.WebAuthnConfig `yaml:"webauthn"`
	Log      LogConfig               `yaml:"log"`

	// Bootstrap seeds a single admin account on first run.
	BootstrapEmail    string `yaml:"bootstrap_email"`
	BootstrapPassword string `yaml:"bootstrap_password"`

	// RequireTwoFactor forces every admin account through a second
	// factor once one is configured for it.
	RequireTwoFactor bool `yaml:"require_two_factor"`

	LoginRatePerMinute int `yaml:"login_rate_per_minute"`
	LoginRateBurst     int `yaml:"login_rate_burst"`
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from an optional YAML file and applies
// environment overrides.
func Load(path string) (*AppConfig, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}

	applyEnvOverrides(cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// defaults returns the built-in configuration values.
func defaults() *AppConfig {
	return &AppConfig{
		Env:    "development",
		Listen: ":8085",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		LoginRatePerMinute: 10,
		LoginRateBurst:     5,
	}
}

// applyEnvOverrides overlays environment variables onto the config.
func applyEnvOverrides(cfg *AppConfig) {
	cfg.Env = envString("ADMIN_API_ENV", cfg.Env)
	cfg.Listen = envString("ADMIN_API_LISTEN", cfg.Listen)
	cfg.DatabaseDSN = envString("ADMIN_API_DATABASE_DSN", cfg.DatabaseDSN)
	cfg.RedisAddr = envString("ADMIN_API_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("ADMIN_API_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("ADMIN_API_REDIS_DB", cfg.RedisDB)
	cfg.Session.Secret = envString("ADMIN_API_SESSION_SECRET", cfg.Session.Secret)
	cfg.BootstrapEmail = envString("ADMIN_API_BOOTSTRAP_EMAIL", cfg.BootstrapEmail)
	cfg.BootstrapPassword = envString("ADMIN_API_BOOTSTRAP_PASSWORD", cfg.BootstrapPassword)
	cfg.RequireTwoFactor = envBool("ADMIN_API_REQUIRE_2FA", cfg.RequireTwoFactor)
	cfg.WebAuthn.RPID = envString("ADMIN_API_WEBAUTHN_RPID", cfg.WebAuthn.RPID)
	if origins := envString("ADMIN_API_WEBAUTHN_ORIGINS", ""); origins != "" {
		cfg.WebAuthn.Origins = splitAndTrim(origins)
	}
	cfg.Log.Level = envString("ADMIN_API_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envString("ADMIN_API_LOG_FILE", cfg.Log.File)
}

// Validate checks configuration invariants. A missing signing secret is
// only tolerated outside production, where an ephemeral secret is
// generated so restarts invalidate sessions instead of sharing a
// guessable default.
func (cfg *AppConfig) Validate() error {
	if strings.TrimSpace(cfg.Session.Secret) == "" {
		if cfg.Production() {
			return ErrMissingSecret
		}
		secret, err := security.GenerateRandomSecret(48)
		if err != nil {
			return fmt.Errorf("config: generate ephemeral secret: %w", err)
		}
		cfg.Session.Secret = secret
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		cfg.DatabaseDSN = "admin-api.db"
	}
	return nil
}

// Production reports whether the service runs in a production-like
// environment.
func (cfg *AppConfig) Production() bool {
	env := strings.ToLower(strings.TrimSpace(cfg.Env))
	return env == "production" || env == "prod"
}

// LoginRate returns the login rate limit settings with fallbacks.
func (cfg *AppConfig) LoginRate() (perMinute, burst int) {
	perMinute = cfg.LoginRatePerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst = cfg.LoginRateBurst
	if burst <= 0 {
		burst = 5
	}
	return perMinute, burst
}

// envString returns an environment value or the fallback.
func envString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// envInt returns an integer environment value or the fallback.
func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

// envBool returns a boolean environment value or the fallback.
func envBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

// splitAndTrim splits a comma-separated list into trimmed entries.
func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
