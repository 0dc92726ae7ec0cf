package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FRIENDSYNC_SNAPSHOT_PATH", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, 12, cfg.PageSize)
	assert.Equal(t, 100, cfg.PendingLimit)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, BackendBadger, cfg.Snapshot.Backend)
	assert.Equal(t, "profile", cfg.Snapshot.Key)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FRIENDSYNC_API_URL", "https://social.example.com/api")
	t.Setenv("FRIENDSYNC_PAGE_SIZE", "20")
	t.Setenv("FRIENDSYNC_HTTP_TIMEOUT", "3s")
	t.Setenv("FRIENDSYNC_LOG_LEVEL", "DEBUG")
	t.Setenv("FRIENDSYNC_SNAPSHOT_BACKEND", "memory")
	t.Setenv("FRIENDSYNC_RATE_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://social.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Snapshot.Backend)
	assert.Equal(t, 10, cfg.RateLimit, "malformed values fall back to defaults")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			APIBaseURL:   "http://localhost:8080/api",
			LogLevel:     "info",
			HTTPTimeout:  time.Second,
			PageSize:     12,
			PendingLimit: 100,
			RateBurst:    1,
			Snapshot:     SnapshotConfig{Backend: BackendMemory, Key: "profile"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad url", mutate: func(c *Config) { c.APIBaseURL = "not a url" }, wantErr: "APIBaseURL"},
		{name: "page size zero", mutate: func(c *Config) { c.PageSize = 0 }, wantErr: "PageSize"},
		{name: "unknown backend", mutate: func(c *Config) { c.Snapshot.Backend = "redis" }, wantErr: "Backend"},
		{name: "postgres without url", mutate: func(c *Config) { c.Snapshot.Backend = BackendPostgres }, wantErr: "DatabaseURL"},
		{name: "badger without path", mutate: func(c *Config) { c.Snapshot.Backend = BackendBadger }, wantErr: "Path"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Snapshot.Backend = BackendS3 }, wantErr: "FRIENDSYNC_S3_BUCKET"},
		{name: "short secret", mutate: func(c *Config) { c.Snapshot.Secret = "abcd" }, wantErr: "Secret"},
		{name: "hex secret", mutate: func(c *Config) { c.Snapshot.Secret = strings.Repeat("ab", 32) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
