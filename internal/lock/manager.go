// Package lock grants short-lived exclusive edit rights on records.
//
// Locks live in the store, not in process memory, so every instance of the
// record API sees the same holder. Expiry is evaluated lazily on each
// acquisition attempt.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/metrics"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/store"
)

// DefaultDuration is how long a lock stays valid without a refresh.
const DefaultDuration = 120 * time.Second

// Manager decides lock acquisition against a LockStore.
type Manager struct {
	store    store.LockStore
	duration time.Duration
	now      func() time.Time
	metrics  *metrics.RecordMetrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithDuration sets the lock validity window. Non-positive values are ignored.
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics records lock attempt outcomes.
func WithMetrics(rm *metrics.RecordMetrics) Option {
	return func(m *Manager) { m.metrics = rm }
}

// NewManager returns a Manager using DefaultDuration unless overridden.
func NewManager(s store.LockStore, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		duration: DefaultDuration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Duration returns the configured validity window.
func (m *Manager) Duration() time.Duration { return m.duration }

// TryLock acquires or refreshes the lock on recordID for user. It never
// returns an error: store failures and lost races both mean "not granted".
// Acquiring a new lock releases any other lock the user holds.
func (m *Manager) TryLock(ctx context.Context, recordID, user string) bool {
	logCtx := slog.With("recordId", recordID, "user", user)
	now := m.now().UTC()
	next := models.Lock{RecordID: recordID, User: user, Timestamp: now, Token: uuid.NewString()}

	current, err := m.store.GetLock(ctx, recordID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.releaseOthers(ctx, logCtx, recordID, user)
		return m.swap(ctx, logCtx, nil, next, metrics.LockAcquired)
	case err != nil:
		logCtx.Error("Failed to read record lock; denying.", "error", err)
		m.metrics.RecordLockAttempt(metrics.LockError)
		return false
	case current.User == user:
		return m.swap(ctx, logCtx, current, next, metrics.LockRefreshed)
	case current.Expired(now, m.duration):
		logCtx.Info("Taking over expired lock.", "previousHolder", current.User, "lockedAt", current.Timestamp)
		m.releaseOthers(ctx, logCtx, recordID, user)
		return m.swap(ctx, logCtx, current, next, metrics.LockTakeover)
	default:
		logCtx.Debug("Record is locked by another user.", "holder", current.User)
		m.metrics.RecordLockAttempt(metrics.LockDenied)
		return false
	}
}

func (m *Manager) swap(ctx context.Context, logCtx *slog.Logger, expected *models.Lock, next models.Lock, outcome string) bool {
	ok, err := m.store.CompareAndSwapLock(ctx, expected, next)
	if err != nil {
		logCtx.Error("Failed to write record lock; denying.", "error", err)
		m.metrics.RecordLockAttempt(metrics.LockError)
		return false
	}
	if !ok {
		logCtx.Info("Lost lock race to another request.")
		m.metrics.RecordLockAttempt(metrics.LockRaceLost)
		return false
	}
	m.metrics.RecordLockAttempt(outcome)
	return true
}

// releaseOthers drops every lock user holds on records other than recordID.
// Failures are logged; they never block acquisition.
func (m *Manager) releaseOthers(ctx context.Context, logCtx *slog.Logger, recordID, user string) {
	n, err := m.store.DeleteLocks(ctx, store.LockFilter{User: user, ExceptRecordID: recordID})
	if err != nil {
		logCtx.Warn("Failed to release user's other locks.", "error", err)
		return
	}
	if n > 0 {
		logCtx.Debug("Released user's other locks.", "count", n)
	}
}

// Release deletes any lock on recordID and any lock held by user. With both
// empty it does nothing. Calling it repeatedly is safe.
func (m *Manager) Release(ctx context.Context, recordID, user string) error {
	if recordID == "" && user == "" {
		return nil
	}
	if _, err := m.store.DeleteLocks(ctx, store.LockFilter{RecordID: recordID, User: user}); err != nil {
		return err
	}
	return nil
}

// ReleaseExpired deletes every lock older than the validity window.
func (m *Manager) ReleaseExpired(ctx context.Context) (int, error) {
	return m.store.DeleteLocks(ctx, store.LockFilter{OlderThan: m.now().UTC().Add(-m.duration)})
}

// Holder returns the user holding an unexpired lock on recordID, or "".
func (m *Manager) Holder(ctx context.Context, recordID string) (string, error) {
	l, err := m.store.GetLock(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if l.Expired(m.now().UTC(), m.duration) {
		return "", nil
	}
	return l.User, nil
}
