// Package config は環境変数とTOMLファイルからアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream
	APIBaseURL           string        `toml:"api_base_url"`
	FetchTimeout         time.Duration `toml:"fetch_timeout"`
	FetchMaxSize         int64         `toml:"fetch_max_size"`
	FetchMaxConcurrent   int           `toml:"fetch_max_concurrent"`
	UpstreamRate         float64       `toml:"upstream_rate"`
	BlockPrivateUpstream bool          `toml:"block_private_upstream"`

	// Representative images
	PlaceholderURL      string        `toml:"placeholder_url"`
	CacheTTL            time.Duration `toml:"cache_ttl"`
	RepresentativeCount int           `toml:"representative_count"`

	// Warm-up
	WarmInterval time.Duration `toml:"warm_interval"`

	// Rate Limit
	RateLimitGeneral int `toml:"rate_limit_general"`

	// Server
	ServerPort        string `toml:"server_port"`
	CORSAllowedOrigin string `toml:"cors_allowed_origin"`

	// Logging
	LogLevel string `toml:"log_level"`
}

// Default はデフォルト値のConfigを返す。
func Default() *Config {
	return &Config{
		APIBaseURL:           "https://jsonplaceholder.typicode.com",
		FetchTimeout:         10 * time.Second,
		FetchMaxSize:         5242880,
		FetchMaxConcurrent:   0,
		UpstreamRate:         0,
		BlockPrivateUpstream: true,
		PlaceholderURL:       "https://via.placeholder.com/150?text=No+Image",
		CacheTTL:             time.Hour,
		RepresentativeCount:  4,
		WarmInterval:         0,
		RateLimitGeneral:     120,
		ServerPort:           "8080",
		CORSAllowedOrigin:    "http://localhost:3000",
		LogLevel:             "info",
	}
}

// Load はConfigを読み込む。
// ALBUMVIEW_CONFIGにTOMLファイルのパスが指定されていれば先に読み込み、
// その後に環境変数で個別の値を上書きする。
// 数値や期間として解釈できない環境変数は無視して既定値を使う。
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("ALBUMVIEW_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.APIBaseURL = getEnvString("API_BASE_URL", cfg.APIBaseURL)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", cfg.FetchMaxSize)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", cfg.FetchMaxConcurrent)
	cfg.UpstreamRate = getEnvFloat("UPSTREAM_RATE", cfg.UpstreamRate)
	cfg.BlockPrivateUpstream = getEnvBool("BLOCK_PRIVATE_UPSTREAM", cfg.BlockPrivateUpstream)
	cfg.PlaceholderURL = getEnvString("PLACEHOLDER_URL", cfg.PlaceholderURL)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.RepresentativeCount = getEnvInt("REPRESENTATIVE_COUNT", cfg.RepresentativeCount)
	cfg.WarmInterval = getEnvDuration("WARM_INTERVAL", cfg.WarmInterval)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", cfg.RateLimitGeneral)
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API_BASE_URL: %q", cfg.APIBaseURL)
	}

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
