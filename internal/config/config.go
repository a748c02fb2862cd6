// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Scheduler trigger
	CronSecret string

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string

	// Dispatch
	// SchedulingTimezone はalert_hour/selected_daysの基準となる暦タイムゾーン。
	// サーバーロケールからは推測せず、常にこの設定値を使う。
	SchedulingTimezone    string
	DispatchMaxConcurrent int
	DispatchInterval      time.Duration
	DispatchTimeout       time.Duration

	// Signup
	ExtensionDays          int
	SignupIPDailyLimit     int
	SignupIPWeeklyLimit    int
	SignupIPMonthlyLimit   int
	SignupFingerprintLimit int

	// Rate Limit (HTTPレイヤ、req/min単位)
	RateLimitGeneral int
	RateLimitSignup  int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.CronSecret = os.Getenv("CRON_SECRET")
	if cfg.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		missing = append(missing, "SMTP_HOST")
	}

	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	if cfg.SMTPUsername == "" {
		missing = append(missing, "SMTP_USERNAME")
	}

	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	if cfg.SMTPPassword == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.FromEmail = getEnvString("FROM_EMAIL", "First Serve Seattle <alerts@firstserveseattle.com>")
	cfg.SchedulingTimezone = getEnvString("SCHEDULING_TIMEZONE", "America/Los_Angeles")
	cfg.DispatchMaxConcurrent = getEnvInt("DISPATCH_MAX_CONCURRENT", 5)
	cfg.DispatchInterval = getEnvDuration("DISPATCH_INTERVAL", 1*time.Hour)
	cfg.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", 10*time.Minute)
	cfg.ExtensionDays = getEnvInt("EXTENSION_DAYS", 7)
	cfg.SignupIPDailyLimit = getEnvInt("SIGNUP_IP_DAILY_LIMIT", 3)
	cfg.SignupIPWeeklyLimit = getEnvInt("SIGNUP_IP_WEEKLY_LIMIT", 4)
	cfg.SignupIPMonthlyLimit = getEnvInt("SIGNUP_IP_MONTHLY_LIMIT", 5)
	cfg.SignupFingerprintLimit = getEnvInt("SIGNUP_FINGERPRINT_LIMIT", 1)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSignup = getEnvInt("RATE_LIMIT_SIGNUP", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// タイムゾーン名は起動時に検証する（配信のたびに失敗させない）
	if _, err := time.LoadLocation(cfg.SchedulingTimezone); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULING_TIMEZONE %q: %w", cfg.SchedulingTimezone, err)
	}

	return cfg, nil
}

// SchedulingLocation は設定されたタイムゾーンの*time.Locationを返す。
// Loadで検証済みのため失敗しない。万一失敗した場合はUTCを返す。
func (c *Config) SchedulingLocation() *time.Location {
	loc, err := time.LoadLocation(c.SchedulingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
