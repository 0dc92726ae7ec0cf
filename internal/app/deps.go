package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/connectcg/friendsync/internal/api"
	"github.com/connectcg/friendsync/internal/auth"
	"github.com/connectcg/friendsync/internal/config"
	"github.com/connectcg/friendsync/internal/db"
	"github.com/connectcg/friendsync/internal/metrics"
	"github.com/connectcg/friendsync/internal/middleware"
	"github.com/connectcg/friendsync/internal/notify"
	"github.com/connectcg/friendsync/internal/session"
	"github.com/connectcg/friendsync/internal/storage"
)

const limiterTTL = 10 * time.Minute

// dependencies are the concrete collaborators behind every command.
type dependencies struct {
	creds    auth.Credentials
	store    storage.Store
	client   *api.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	session  *session.Session
}

// buildDependencies wires storage, transport and the session for cfg. The
// returned cleanup closes the snapshot store.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (*dependencies, func() error, error) {
	creds, err := auth.ParseAccessToken(cfg.AccessToken)
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		logger.Warn("no access token configured, requests are sent anonymously")
	case err != nil:
		return nil, nil, err
	}

	store, err := openSnapshotStore(ctx, cfg.Snapshot, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := store.Close

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	client, err := api.New(cfg.APIBaseURL,
		api.WithHTTPClient(newHTTPClient(cfg, creds, logger)),
		api.WithMetrics(m),
	)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	sess, err := session.New(session.Options{
		Client:       client,
		Storage:      store,
		SnapshotKey:  cfg.Snapshot.Key,
		ViewerID:     creds.UserID,
		PageSize:     cfg.PageSize,
		PendingLimit: cfg.PendingLimit,
		Notifier:     notify.LogNotifier{},
		Metrics:      m,
	})
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	return &dependencies{
		creds:    creds,
		store:    store,
		client:   client,
		registry: registry,
		metrics:  m,
		session:  sess,
	}, cleanup, nil
}

// newHTTPClient builds the outbound chain: auth header, request log, then the
// per-host rate limiter in front of the default transport.
func newHTTPClient(cfg config.Config, creds auth.Credentials, logger *slog.Logger) *http.Client {
	limiter := middleware.NewKeyedRateLimiter(cfg.RateLimit, time.Second, cfg.RateBurst, limiterTTL)
	return &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: middleware.Chain(http.DefaultTransport,
			auth.Bearer(creds, nil),
			middleware.RequestLogger(logger),
			middleware.RateLimit(limiter),
		),
	}
}

// openSnapshotStore opens the configured backend, sealing it when a secret is set.
func openSnapshotStore(ctx context.Context, cfg config.SnapshotConfig, logger *slog.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Backend {
	case config.BackendBadger:
		store, err = storage.OpenBadger(storage.BadgerConfig{Path: cfg.Path, SyncWrites: true, Logger: logger})
	case config.BackendPostgres:
		var pool db.Pool
		pool, err = db.Connect(ctx, cfg.DatabaseURL, 2)
		if err == nil {
			store = storage.NewPostgresStore(pool)
		}
	case config.BackendS3:
		store, err = storage.NewS3Store(ctx, cfg.ObjectStore)
	case config.BackendMemory:
		store = storage.NewMemoryStore()
	default:
		err = fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Secret == "" {
		return store, nil
	}
	sealed, err := storage.NewSealed(store, cfg.Secret)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return sealed, nil
}
