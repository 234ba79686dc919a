// Package config はアプリケーション全体の設定を環境変数から読み込む。
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Content service
	BackendBaseURL string

	// Identity provider
	IdentityTokenURL     string
	IdentityAPIKey       string
	IdentityRefreshToken string

	// HTTP
	HTTPTimeout time.Duration

	// Outbound rate limit
	RateLimitPerSec float64
	RateLimitBurst  int

	// Poster
	PosterTimeout time.Duration
	PosterMaxSize int64

	// Featured redirect
	RedirectCountdownSeconds int

	// Devstub
	DevstubPort string
}

const (
	// defaultBackendBaseURL はコンテンツサービスのデフォルトURL。
	defaultBackendBaseURL = "http://localhost:5000"
	// defaultIdentityTokenURL はIDプロバイダーのトークンエンドポイントのデフォルトURL。
	defaultIdentityTokenURL = "https://securetoken.googleapis.com/v1/token"
)

// Load は環境変数からConfigを読み込む。
// BACKEND_BASE_URLが不正なURLの場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BackendBaseURL = strings.TrimRight(getEnvString("BACKEND_BASE_URL", defaultBackendBaseURL), "/")
	if err := validateBaseURL(cfg.BackendBaseURL); err != nil {
		return nil, fmt.Errorf("BACKEND_BASE_URL is invalid: %w", err)
	}

	cfg.IdentityTokenURL = getEnvString("IDENTITY_TOKEN_URL", defaultIdentityTokenURL)
	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	cfg.IdentityRefreshToken = os.Getenv("IDENTITY_REFRESH_TOKEN")

	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.RateLimitPerSec = getEnvFloat("RATE_LIMIT_PER_SEC", 5)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.PosterTimeout = getEnvDuration("POSTER_TIMEOUT", 5*time.Second)
	cfg.PosterMaxSize = getEnvInt64("POSTER_MAX_SIZE", 5242880)
	cfg.RedirectCountdownSeconds = getEnvInt("REDIRECT_COUNTDOWN_SECONDS", 3)
	cfg.DevstubPort = getEnvString("DEVSTUB_PORT", "5000")

	if cfg.RedirectCountdownSeconds < 1 {
		cfg.RedirectCountdownSeconds = 1
	}

	return cfg, nil
}

// validateBaseURL はベースURLがhttp/httpsの絶対URLであることを検証する。
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required: %q", raw)
	}
	return nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
