// Package profile mirrors the viewer's friend count into a persisted profile
// snapshot so it survives restarts without a profile refetch.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/connectcg/friendsync/internal/logging"
	"github.com/connectcg/friendsync/internal/metrics"
	"github.com/connectcg/friendsync/internal/models"
	"github.com/connectcg/friendsync/internal/storage"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "profile"

// Mirror holds the snapshot in memory and writes it through to a store.
type Mirror struct {
	store   storage.Store
	key     string
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	snapshot *models.ProfileSnapshot
}

// Option customises a Mirror.
type Option func(*Mirror)

// WithMetrics records count adjustments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mr *Mirror) { mr.metrics = m }
}

// WithClock overrides time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(mr *Mirror) {
		if now != nil {
			mr.now = now
		}
	}
}

// NewMirror returns a Mirror persisting under key in store.
func NewMirror(store storage.Store, key string, opts ...Option) *Mirror {
	if key == "" {
		key = DefaultKey
	}
	m := &Mirror{store: store, key: key, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the persisted snapshot. It reports false when nothing is stored.
func (m *Mirror) Load(ctx context.Context) (bool, error) {
	raw, err := m.store.Get(ctx, m.key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load profile snapshot: %w", err)
	}

	var snap models.ProfileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logging.FromContext(ctx).Warn("discarding unreadable profile snapshot", slog.String("error", err.Error()))
		return false, nil
	}
	if snap.FriendsCount < 0 {
		snap.FriendsCount = 0
	}

	m.mu.Lock()
	m.snapshot = &snap
	m.mu.Unlock()
	return true, nil
}

// Replace stores snap wholesale.
func (m *Mirror) Replace(ctx context.Context, snap models.ProfileSnapshot) error {
	if snap.FriendsCount < 0 {
		snap.FriendsCount = 0
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = &snap
	return m.persistLocked(ctx)
}

// Adjust adds delta to the friend count, never letting it drop below zero,
// and persists the whole snapshot. Without a snapshot there is nothing to
// adjust and Adjust returns nil.
func (m *Mirror) Adjust(ctx context.Context, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot == nil {
		logging.FromContext(ctx).Debug("friend count adjustment skipped, no profile snapshot", slog.Int("delta", delta))
		return nil
	}

	count := m.snapshot.FriendsCount + delta
	if count < 0 {
		count = 0
	}
	applied := count - m.snapshot.FriendsCount
	m.snapshot.FriendsCount = count
	m.snapshot.UpdatedAt = m.now().UTC()
	m.metrics.CountAdjusted(applied)

	return m.persistLocked(ctx)
}

func (m *Mirror) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(m.snapshot)
	if err != nil {
		return fmt.Errorf("encode profile snapshot: %w", err)
	}
	if err := m.store.Put(ctx, m.key, raw); err != nil {
		return fmt.Errorf("persist profile snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the in-memory snapshot, if any.
func (m *Mirror) Snapshot() (models.ProfileSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return models.ProfileSnapshot{}, false
	}
	return *m.snapshot, true
}

// FriendsCount returns the mirrored count, zero without a snapshot.
func (m *Mirror) FriendsCount() int {
	snap, _ := m.Snapshot()
	return snap.FriendsCount
}

// Clear forgets the snapshot and deletes it from storage.
func (m *Mirror) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.snapshot = nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx, m.key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete profile snapshot: %w", err)
	}
	return nil
}
