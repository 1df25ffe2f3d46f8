// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL" env-required:"true"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID" env-required:"true"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET" env-required:"true"`
	// GoogleRedirectURL はワンタイムコードフローでは "postmessage" を使う。
	GoogleRedirectURL string `env:"GOOGLE_REDIRECT_URL" env-default:"postmessage"`

	// Identity provider calls
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT" env-default:"5s"`
	ProviderMaxRetries   int           `env:"PROVIDER_MAX_RETRIES" env-default:"2"`
	ProviderRetryBackoff time.Duration `env:"PROVIDER_RETRY_BACKOFF" env-default:"200ms"`

	// Session
	SessionMaxAge          int    `env:"SESSION_MAX_AGE" env-default:"86400"`
	SessionCleanupSchedule string `env:"SESSION_CLEANUP_SCHEDULE" env-default:"@every 1h"`

	// Catalog
	EnforceItemOwnership bool `env:"ENFORCE_ITEM_OWNERSHIP" env-default:"true"`

	// Server
	ServerPort     string `env:"SERVER_PORT" env-default:"8080"`
	BaseURL        string `env:"BASE_URL" env-required:"true"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" env-default:"true"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN" env-default:""`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は読み込んだ値の整合性を検証する。
func (c *Config) Validate() error {
	var problems []string

	// 空文字で設定された必須項目
	for name, value := range map[string]string{
		"DATABASE_URL":         c.DatabaseURL,
		"GOOGLE_CLIENT_ID":     c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": c.GoogleClientSecret,
		"BASE_URL":             c.BaseURL,
	} {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" must not be empty")
		}
	}
	sort.Strings(problems)

	if c.SessionMaxAge <= 0 {
		problems = append(problems, "SESSION_MAX_AGE must be positive")
	}
	if c.ProviderTimeout <= 0 {
		problems = append(problems, "PROVIDER_TIMEOUT must be positive")
	}
	if c.ProviderMaxRetries < 0 {
		problems = append(problems, "PROVIDER_MAX_RETRIES must not be negative")
	}
	if c.DBMaxOpenConns <= 0 {
		problems = append(problems, "DB_MAX_OPEN_CONNS must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SessionMaxAgeDuration はSessionMaxAgeをtime.Durationで返す。
func (c *Config) SessionMaxAgeDuration() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}
