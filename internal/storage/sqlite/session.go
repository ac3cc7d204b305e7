package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

const sessionColumns = "id, user_id, access_token_hash, refresh_token_hash, expires_at, last_activity, created_at, ip_address, user_agent"

// CreateSession stores a new session row
func (s *Storage) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.AccessTokenHash,
		session.RefreshTokenHash,
		session.ExpiresAt,
		session.LastActivity,
		session.CreatedAt,
		session.IPAddress,
		session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	session := &models.Session{}
	err := scan(
		&session.ID,
		&session.UserID,
		&session.AccessTokenHash,
		&session.RefreshTokenHash,
		&session.ExpiresAt,
		&session.LastActivity,
		&session.CreatedAt,
		&session.IPAddress,
		&session.UserAgent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetSessionByID retrieves session by ID
func (s *Storage) GetSessionByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, sessionID).Scan)
}

// GetSessionByRefreshTokenHash retrieves session by refresh token hash
func (s *Storage) GetSessionByRefreshTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, tokenHash).Scan)
}

// GetUserSessions retrieves all sessions for a user, oldest activity first
func (s *Storage) GetUserSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? ORDER BY last_activity ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// UpdateSessionTokens replaces both token hashes and the absolute expiry
func (s *Storage) UpdateSessionTokens(ctx context.Context, sessionID, accessHash, refreshHash string, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET access_token_hash = ?, refresh_token_hash = ?, expires_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, accessHash, refreshHash, expiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrSessionNotFound
	}

	return nil
}

// TouchSession advances last_activity to ts only if ts is newer, so
// out-of-order heartbeats keep the latest timestamp. A missing row is a
// no-op.
func (s *Storage) TouchSession(ctx context.Context, sessionID string, ts time.Time) error {
	query := `UPDATE sessions SET last_activity = ? WHERE id = ? AND last_activity < ?`

	if _, err := s.db.ExecContext(ctx, query, ts, sessionID, ts); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// DeleteSession deletes session by ID
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrSessionNotFound
	}

	return nil
}

// DeleteUserSessions deletes all sessions for a user
func (s *Storage) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteExpiredSessions removes sessions past their absolute expiry
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteInactiveSessions removes sessions whose last activity is before cutoff
func (s *Storage) DeleteInactiveSessions(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}
