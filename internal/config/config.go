package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ObjectStoreConfig describes where course thumbnails are uploaded. An empty bucket
// disables uploads.
type ObjectStoreConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// Enabled reports whether an object store is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// Config captures the runtime configuration for the Young Academy service.
type Config struct {
	AppPort             int
	DatabaseURL         string
	DatabaseNotify      bool
	MigrationDir        string
	SeedDir             string
	LogLevel            string
	ProjectID           string
	APIKey              string
	TokenSecret         string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	BootstrapAdminEmail string
	InstanceIdleTTL     time.Duration
	MaxInstances        int
	SecureCookies       bool

	YTDLPPath        string
	YTDLPTimeout     time.Duration
	MetadataCacheTTL time.Duration

	ObjectStore ObjectStoreConfig

	AuthRateLimit  int
	AuthRateWindow time.Duration
}

const defaultTokenSecret = "young-academy-dev-secret"

// Load reads configuration from environment variables, applying defaults for local
// development. Values from a .env file in the working directory are loaded first;
// variables already present in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppPort:             getInt("YA_PORT", 8080),
		DatabaseURL:         getString("YA_DATABASE_URL", ""),
		DatabaseNotify:      getBool("YA_DATABASE_NOTIFY", false),
		MigrationDir:        getString("YA_MIGRATIONS", "migrations"),
		SeedDir:             getString("YA_SEEDS", "seeds"),
		LogLevel:            getString("YA_LOG_LEVEL", "info"),
		ProjectID:           getString("YA_PROJECT_ID", "young-academy"),
		APIKey:              getString("YA_API_KEY", ""),
		TokenSecret:         getString("YA_TOKEN_SECRET", defaultTokenSecret),
		AccessTTL:           getDuration("YA_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:          getDuration("YA_REFRESH_TTL", 30*24*time.Hour),
		BootstrapAdminEmail: getString("YA_BOOTSTRAP_ADMIN_EMAIL", "admin@young-academy.dev"),
		InstanceIdleTTL:     getDuration("YA_INSTANCE_IDLE_TTL", 30*time.Minute),
		MaxInstances:        getInt("YA_MAX_INSTANCES", 10000),
		SecureCookies:       getBool("YA_SECURE_COOKIES", false),
		YTDLPPath:           getString("YA_YTDLP_PATH", "yt-dlp"),
		YTDLPTimeout:        getDuration("YA_YTDLP_TIMEOUT", 30*time.Second),
		MetadataCacheTTL:    getDuration("YA_METADATA_CACHE_TTL", 15*time.Minute),
		ObjectStore: ObjectStoreConfig{
			Bucket:        getString("YA_S3_BUCKET", ""),
			Region:        getString("YA_S3_REGION", "eu-central-1"),
			Endpoint:      getString("YA_S3_ENDPOINT", ""),
			PublicBaseURL: getString("YA_S3_PUBLIC_URL", ""),
		},
		AuthRateLimit:  getInt("YA_AUTH_RATE_LIMIT", 10),
		AuthRateWindow: getDuration("YA_AUTH_RATE_WINDOW", time.Minute),
	}

	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return Config{}, fmt.Errorf("invalid YA_PORT %d", cfg.AppPort)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return Config{}, errors.New("token lifetimes must be positive")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
