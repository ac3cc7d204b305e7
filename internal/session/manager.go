package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/obs"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// RefreshThreshold is how close to absolute expiry a session check
// starts advising the client to refresh proactively.
const RefreshThreshold = 5 * time.Minute

// Manager tracks per-user session activity and enforces the inactivity
// timeout and the concurrent-session cap. No in-memory state is
// authoritative: every operation is a single-row read/write, so
// concurrent requests reduce to the store's own atomicity.
type Manager struct {
	logger   *slog.Logger
	sessions storage.SessionStorage
	settings storage.SettingsStorage

	mu  sync.RWMutex
	cfg models.SessionConfig

	now func() time.Time
}

// NewManager creates a session manager with the config loaded from the
// settings store merged over defaults.
func NewManager(ctx context.Context, logger *slog.Logger, sessions storage.SessionStorage, settings storage.SettingsStorage) (*Manager, error) {
	cfg, err := LoadConfig(ctx, settings)
	if err != nil {
		return nil, err
	}

	return &Manager{
		logger:   logger,
		sessions: sessions,
		settings: settings,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Config returns the current session config.
func (m *Manager) Config() models.SessionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// AccessTokenTTL returns the current access token lifetime.
func (m *Manager) AccessTokenTTL() time.Duration {
	return m.Config().AccessTokenTTL()
}

// RefreshTokenTTL returns the current refresh token lifetime.
func (m *Manager) RefreshTokenTTL() time.Duration {
	return m.Config().RefreshTokenTTL()
}

// UpdateConfig persists and applies a new session config.
func (m *Manager) UpdateConfig(ctx context.Context, cfg models.SessionConfig) error {
	if err := SaveConfig(ctx, m.settings, cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session config updated",
		slog.Int("inactivity_timeout_minutes", cfg.InactivityTimeoutMinutes),
		slog.Bool("inactivity_lock_enabled", cfg.InactivityLockEnabled),
		slog.Int("max_concurrent_sessions", cfg.MaxConcurrentSessions))

	return nil
}

// CreateSession stores a new session row for the user. If the user is at
// the concurrent-session cap, the session with the oldest activity is
// evicted first.
func (m *Manager) CreateSession(ctx context.Context, userID, accessToken, refreshToken, ip, userAgent string) (*models.Session, error) {
	cfg := m.Config()
	now := m.now().UTC()

	existing, err := m.sessions.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	for len(existing) >= cfg.MaxConcurrentSessions && len(existing) > 0 {
		oldest := existing[0]
		if err := m.sessions.DeleteSession(ctx, oldest.ID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to evict oldest session: %w", err)
		}
		m.logger.InfoContext(ctx, "evicted oldest session at concurrency cap",
			slog.String("user_id", userID), slog.String("session_id", oldest.ID))
		existing = existing[1:]
	}

	session := &models.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		AccessTokenHash:  hashOf(accessToken),
		RefreshTokenHash: hashOf(refreshToken),
		ExpiresAt:        now.Add(cfg.RefreshTokenTTL()),
		LastActivity:     now,
		CreatedAt:        now,
		IPAddress:        ip,
		UserAgent:        userAgent,
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	obs.SessionsCreated.Inc()
	return session, nil
}

// RecordActivity advances the session's last activity to now. Side
// effect only: a missing session row is a silent no-op.
func (m *Manager) RecordActivity(ctx context.Context, sessionID string) {
	if err := m.sessions.TouchSession(ctx, sessionID, m.now().UTC()); err != nil {
		m.logger.WarnContext(ctx, "failed to record session activity",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// CheckSession validates the session behind a refresh token. A session
// past absolute expiry is deleted as a side effect; a session past the
// inactivity timeout is reported invalid but kept, so the client can
// re-authenticate explicitly instead of silently losing state.
func (m *Manager) CheckSession(ctx context.Context, refreshToken string) (models.SessionCheck, error) {
	session, err := m.sessions.GetSessionByRefreshTokenHash(ctx, hashOf(refreshToken))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return models.SessionCheck{Valid: false}, nil
		}
		return models.SessionCheck{}, fmt.Errorf("failed to look up session: %w", err)
	}

	now := m.now().UTC()

	if !now.Before(session.ExpiresAt) {
		if err := m.sessions.DeleteSession(ctx, session.ID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			m.logger.WarnContext(ctx, "failed to delete expired session",
				slog.String("session_id", session.ID), slog.Any("error", err))
		}
		return models.SessionCheck{Valid: false}, nil
	}

	cfg := m.Config()
	if cfg.InactivityLockEnabled && now.Sub(session.LastActivity) > cfg.InactivityTimeout() {
		// Timed out, not deleted: the row stays inspectable
		return models.SessionCheck{Valid: false, ExpiresAt: session.ExpiresAt}, nil
	}

	return models.SessionCheck{
		Valid:         true,
		ExpiresAt:     session.ExpiresAt,
		ShouldRefresh: session.ExpiresAt.Sub(now) < RefreshThreshold,
	}, nil
}

// RotateSessionTokens replaces the session's token hashes after a
// refresh, extending the absolute expiry by the refresh TTL.
func (m *Manager) RotateSessionTokens(ctx context.Context, sessionID, accessToken, refreshToken string) error {
	expiresAt := m.now().UTC().Add(m.Config().RefreshTokenTTL())
	return m.sessions.UpdateSessionTokens(ctx, sessionID, hashOf(accessToken), hashOf(refreshToken), expiresAt)
}

// GetByRefreshToken returns the session row behind a refresh token.
func (m *Manager) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	return m.sessions.GetSessionByRefreshTokenHash(ctx, hashOf(refreshToken))
}

// ListUserSessions returns all sessions for the user.
func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	return m.sessions.GetUserSessions(ctx, userID)
}

// InvalidateSession deletes one session; used on logout. An absent
// session is already the desired end state and is not an error.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) error {
	err := m.sessions.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateAllUserSessions deletes every session of a user; used on
// password change, when the old password no longer authorizes anything.
func (m *Manager) InvalidateAllUserSessions(ctx context.Context, userID string) (int, error) {
	count, err := m.sessions.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate user sessions: %w", err)
	}
	return count, nil
}

// CleanupExpiredSessions removes sessions past absolute expiry and
// returns the count removed.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	count, err := m.sessions.DeleteExpiredSessions(ctx, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}
	obs.SessionsSwept.WithLabelValues("expired").Add(float64(count))
	return count, nil
}

// CleanupInactiveSessions removes sessions past the inactivity timeout
// and returns the count removed. No-op when the inactivity lock is off.
func (m *Manager) CleanupInactiveSessions(ctx context.Context) (int, error) {
	cfg := m.Config()
	if !cfg.InactivityLockEnabled {
		return 0, nil
	}

	cutoff := m.now().UTC().Add(-cfg.InactivityTimeout())
	count, err := m.sessions.DeleteInactiveSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up inactive sessions: %w", err)
	}
	obs.SessionsSwept.WithLabelValues("inactive").Add(float64(count))
	return count, nil
}
