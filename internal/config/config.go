package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Snapshot storage backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// Config captures the runtime configuration for the friendsync client.
type Config struct {
	APIBaseURL   string        `validate:"required,url"`
	AccessToken  string        `validate:"omitempty"`
	LogLevel     string        `validate:"oneof=debug info warn warning error"`
	HTTPTimeout  time.Duration `validate:"gt=0"`
	PageSize     int           `validate:"gte=1,lte=100"`
	PendingLimit int           `validate:"gte=1,lte=500"`
	RateLimit    int           `validate:"gte=0"`
	RateBurst    int           `validate:"gte=1"`

	Snapshot SnapshotConfig
}

// SnapshotConfig selects where the profile snapshot is persisted.
type SnapshotConfig struct {
	Backend     string `validate:"oneof=badger postgres s3 memory"`
	Key         string `validate:"required"`
	Path        string `validate:"required_if=Backend badger"`
	DatabaseURL string `validate:"required_if=Backend postgres"`
	Secret      string `validate:"omitempty,len=64,hexadecimal"`

	ObjectStore ObjectStoreConfig
}

// ObjectStoreConfig configures the S3-compatible snapshot backend.
type ObjectStoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// Load reads configuration from an optional .env file and environment variables,
// applying defaults suited to a local client.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		APIBaseURL:   getString("FRIENDSYNC_API_URL", "http://localhost:8080/api"),
		AccessToken:  getString("FRIENDSYNC_ACCESS_TOKEN", ""),
		LogLevel:     strings.ToLower(getString("FRIENDSYNC_LOG_LEVEL", "info")),
		HTTPTimeout:  getDuration("FRIENDSYNC_HTTP_TIMEOUT", 10*time.Second),
		PageSize:     getInt("FRIENDSYNC_PAGE_SIZE", 12),
		PendingLimit: getInt("FRIENDSYNC_PENDING_LIMIT", 100),
		RateLimit:    getInt("FRIENDSYNC_RATE_LIMIT", 10),
		RateBurst:    getInt("FRIENDSYNC_RATE_BURST", 5),
		Snapshot: SnapshotConfig{
			Backend:     strings.ToLower(getString("FRIENDSYNC_SNAPSHOT_BACKEND", BackendBadger)),
			Key:         getString("FRIENDSYNC_SNAPSHOT_KEY", "profile"),
			Path:        getString("FRIENDSYNC_SNAPSHOT_PATH", defaultSnapshotPath()),
			DatabaseURL: getString("FRIENDSYNC_DATABASE_URL", ""),
			Secret:      getString("FRIENDSYNC_SNAPSHOT_SECRET", ""),
			ObjectStore: ObjectStoreConfig{
				Bucket:   getString("FRIENDSYNC_S3_BUCKET", ""),
				Region:   getString("FRIENDSYNC_S3_REGION", "us-east-1"),
				Endpoint: getString("FRIENDSYNC_S3_ENDPOINT", ""),
				Prefix:   getString("FRIENDSYNC_S3_PREFIX", "friendsync/"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration for missing or malformed values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Snapshot.Backend == BackendS3 && strings.TrimSpace(c.Snapshot.ObjectStore.Bucket) == "" {
		return errors.New("invalid configuration: FRIENDSYNC_S3_BUCKET is required for the s3 snapshot backend")
	}
	return nil
}

func defaultSnapshotPath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return ".friendsync"
	}
	return filepath.Join(dir, "friendsync")
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
