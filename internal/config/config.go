package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Feed
	FeedURL             string
	RSSGroupURLs        []string
	FeedRefreshInterval time.Duration
	FeedPollInterval    time.Duration

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Image dimensions
	ImageProbeTimeout     time.Duration
	ImageProbeMaxBytes    int64
	ImageProbeRate        int
	ImageProbeConcurrency int
	ImageProbeOnMiss      bool
	ImageCacheTTL         time.Duration
	ImageCacheNegativeTTL time.Duration

	// Render
	RenderConcurrency   int
	RenderLookupTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Retention
	SnapshotRetentionDays   int
	ImageCacheRetentionDays int

	// Server
	ServerPort string

	// Viewer session
	ViewerCookieSecure bool
	ViewerIdleTTL      time.Duration

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
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

	cfg.FeedURL = os.Getenv("FEED_URL")
	if cfg.FeedURL == "" {
		missing = append(missing, "FEED_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RSSGroupURLs = getEnvList("RSS_GROUP_URLS", nil)
	cfg.FeedRefreshInterval = getEnvDuration("FEED_REFRESH_INTERVAL", 5*time.Minute)
	cfg.FeedPollInterval = getEnvDuration("FEED_POLL_INTERVAL", 15*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.ImageProbeTimeout = getEnvDuration("IMAGE_PROBE_TIMEOUT", 5*time.Second)
	cfg.ImageProbeMaxBytes = getEnvInt64("IMAGE_PROBE_MAX_BYTES", 1048576)
	cfg.ImageProbeRate = getEnvInt("IMAGE_PROBE_RATE", 5)
	cfg.ImageProbeConcurrency = getEnvInt("IMAGE_PROBE_CONCURRENCY", 8)
	cfg.ImageProbeOnMiss = getEnvBool("IMAGE_PROBE_ON_MISS", false)
	cfg.ImageCacheTTL = getEnvDuration("IMAGE_CACHE_TTL", 24*time.Hour)
	cfg.ImageCacheNegativeTTL = getEnvDuration("IMAGE_CACHE_NEGATIVE_TTL", time.Hour)
	cfg.RenderConcurrency = getEnvInt("RENDER_CONCURRENCY", 8)
	cfg.RenderLookupTimeout = getEnvDuration("RENDER_LOOKUP_TIMEOUT", 2*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.SnapshotRetentionDays = getEnvInt("SNAPSHOT_RETENTION_DAYS", 7)
	cfg.ImageCacheRetentionDays = getEnvInt("IMAGE_CACHE_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ViewerCookieSecure = getEnvBool("VIEWER_COOKIE_SECURE", false)
	cfg.ViewerIdleTTL = getEnvDuration("VIEWER_IDLE_TTL", 30*time.Minute)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
