package storage

import (
	"context"
	"time"

	"github.com/opsdeck/opsdeck/internal/models"
)

// SessionStorage defines interface for session persistence. All methods
// are single-row keyed operations; correctness under concurrent requests
// reduces to the store's own row-level atomicity.
type SessionStorage interface {
	// CreateSession stores a new session row
	CreateSession(ctx context.Context, session *models.Session) error

	// GetSessionByID retrieves session by ID
	// Returns ErrSessionNotFound if session doesn't exist
	GetSessionByID(ctx context.Context, sessionID string) (*models.Session, error)

	// GetSessionByRefreshTokenHash retrieves session by refresh token hash
	// Returns ErrSessionNotFound if session doesn't exist
	GetSessionByRefreshTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)

	// GetUserSessions retrieves all sessions for a user, oldest activity first
	GetUserSessions(ctx context.Context, userID string) ([]*models.Session, error)

	// UpdateSessionTokens replaces both token hashes and the absolute
	// expiry, used when a refresh rotates the token pair
	UpdateSessionTokens(ctx context.Context, sessionID, accessHash, refreshHash string, expiresAt time.Time) error

	// TouchSession advances last_activity to ts if ts is newer than the
	// stored value. A missing row is a no-op, not an error.
	TouchSession(ctx context.Context, sessionID string, ts time.Time) error

	// DeleteSession deletes session by ID
	// Returns ErrSessionNotFound if session doesn't exist
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteUserSessions deletes all sessions for a user
	// Returns number of deleted sessions
	DeleteUserSessions(ctx context.Context, userID string) (int, error)

	// DeleteExpiredSessions removes sessions past their absolute expiry
	// Returns number of deleted sessions
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// DeleteInactiveSessions removes sessions whose last_activity is
	// before cutoff. Returns number of deleted sessions.
	DeleteInactiveSessions(ctx context.Context, cutoff time.Time) (int, error)
}
