package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectcg/friendsync/internal/auth"
	"github.com/connectcg/friendsync/internal/config"
	"github.com/connectcg/friendsync/internal/storage"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedToken(t *testing.T, userID string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		APIBaseURL:   baseURL,
		LogLevel:     "error",
		HTTPTimeout:  time.Second,
		PageSize:     12,
		PendingLimit: 100,
		RateLimit:    0,
		RateBurst:    1,
		Snapshot: config.SnapshotConfig{
			Backend: config.BackendMemory,
			Key:     "profile",
		},
	}
}

func TestOpenSnapshotStoreBackends(t *testing.T) {
	ctx := context.Background()

	mem, err := openSnapshotStore(ctx, config.SnapshotConfig{Backend: config.BackendMemory}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, mem)

	badgerStore, err := openSnapshotStore(ctx, config.SnapshotConfig{Backend: config.BackendBadger, Path: t.TempDir()}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &storage.BadgerStore{}, badgerStore)
	require.NoError(t, badgerStore.Close())

	sealed, err := openSnapshotStore(ctx, config.SnapshotConfig{Backend: config.BackendMemory, Secret: testSecret}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &storage.Sealed{}, sealed)

	_, err = openSnapshotStore(ctx, config.SnapshotConfig{Backend: "floppy"}, discardLogger())
	require.Error(t, err)
}

func TestHTTPClientAttachesBearerToken(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	token := signedToken(t, "me", time.Now().Add(time.Hour))
	creds, err := auth.ParseAccessToken(token)
	require.NoError(t, err)

	client := newHTTPClient(testConfig(srv.URL), creds, discardLogger())
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer "+token, gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestBuildDependencies(t *testing.T) {
	cfg := testConfig("http://localhost:8080/api")
	cfg.AccessToken = signedToken(t, "me", time.Now().Add(time.Hour))

	deps, cleanup, err := buildDependencies(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	defer func() { _ = cleanup() }()

	assert.Equal(t, "me", deps.creds.UserID)
	assert.Equal(t, "me", deps.session.ViewerID())
	assert.NotNil(t, deps.client)
	assert.NotNil(t, deps.metrics)
	assert.NotNil(t, deps.store)
}

func TestBuildDependenciesWithoutToken(t *testing.T) {
	deps, cleanup, err := buildDependencies(context.Background(), testConfig("http://localhost:8080/api"), discardLogger())
	require.NoError(t, err)
	defer func() { _ = cleanup() }()
	assert.Empty(t, deps.creds.UserID)
}

func TestBuildDependenciesRejectsGarbageToken(t *testing.T) {
	cfg := testConfig("http://localhost:8080/api")
	cfg.AccessToken = "not-a-jwt"
	_, _, err := buildDependencies(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "access token"))
}
