package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/obs"
	"github.com/opsdeck/opsdeck/internal/session"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/validation"
)

// LocalProvider authenticates against the local credential store. It is
// the authentication path in both modes; in solo mode it is also the
// (empty) authorization source.
type LocalProvider struct {
	logger   *slog.Logger
	users    storage.UserStorage
	codec    *auth.TokenCodec
	sessions *session.Manager
}

// NewLocalProvider creates the local identity provider.
func NewLocalProvider(logger *slog.Logger, users storage.UserStorage, codec *auth.TokenCodec, sessions *session.Manager) *LocalProvider {
	return &LocalProvider{
		logger:   logger,
		users:    users,
		codec:    codec,
		sessions: sessions,
	}
}

// Register creates a new local user. Registration is always local,
// independent of mode.
func (p *LocalProvider) Register(ctx context.Context, username, email, password, displayName string) (*models.User, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		DisplayName:  displayName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID), slog.String("username", username))

	return user, nil
}

// Login authenticates a username/password pair and mints a session with
// a fresh token pair.
func (p *LocalProvider) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := p.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Identical outcome to a wrong password: never leak which
			obs.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, auth.ErrInvalidCredentials
		}
		obs.LoginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		obs.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, auth.ErrInvalidCredentials
	}

	if !user.Active {
		obs.LoginsTotal.WithLabelValues("disabled").Inc()
		return nil, auth.ErrUserDisabled
	}

	result, err := p.mintSession(ctx, user, ip, userAgent)
	if err != nil {
		obs.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	obs.LoginsTotal.WithLabelValues("success").Inc()
	p.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID), slog.String("session_id", result.SessionID))

	return result, nil
}

func (p *LocalProvider) mintSession(ctx context.Context, user *models.User, ip, userAgent string) (*LoginResult, error) {
	accessToken, err := p.codec.IssueAccessToken(ctx, user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := p.codec.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	sess, err := p.sessions.CreateSession(ctx, user.ID, accessToken, refreshToken, ip, userAgent)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         user,
		SessionID:    sess.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(p.sessions.Config().AccessTokenTTL().Seconds()),
	}, nil
}

// VerifyAccessToken validates a bearer token against the local codec.
func (p *LocalProvider) VerifyAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	return p.codec.VerifyAccessToken(ctx, token)
}

// RefreshTokens rotates the token pair behind a valid refresh token.
// The session must still be live: a timed-out or expired session
// requires a full re-authentication.
func (p *LocalProvider) RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := p.codec.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	check, err := p.sessions.CheckSession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		return nil, auth.ErrSessionExpired
	}

	sess, err := p.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, auth.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	user, err := p.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.Active {
		return nil, auth.ErrUserDisabled
	}

	newAccess, err := p.codec.IssueAccessToken(ctx, user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	newRefresh, err := p.codec.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	if err := p.sessions.RotateSessionTokens(ctx, sess.ID, newAccess, newRefresh); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			// Swept out from under us between the check and the update
			return nil, auth.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to rotate session tokens: %w", err)
	}

	return &LoginResult{
		User:         user,
		SessionID:    sess.ID,
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(p.sessions.Config().AccessTokenTTL().Seconds()),
	}, nil
}

// Logout invalidates the session behind the refresh token. It never
// fails from the caller's perspective: an unknown or expired token
// means the desired end state already holds.
func (p *LocalProvider) Logout(ctx context.Context, refreshToken string) error {
	sess, err := p.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil
	}

	if err := p.sessions.InvalidateSession(ctx, sess.ID); err != nil {
		p.logger.WarnContext(ctx, "failed to invalidate session on logout",
			slog.String("session_id", sess.ID), slog.Any("error", err))
	}
	return nil
}

// ChangePassword verifies the old password, stores the new hash, and
// invalidates every session of the user: the old password no longer
// authorizes anything.
func (p *LocalProvider) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := p.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return auth.ErrInvalidCredentials
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.VerifyPassword(oldPassword, user.PasswordHash) {
		return auth.ErrInvalidCredentials
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = hash
	if err := p.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	count, err := p.sessions.InvalidateAllUserSessions(ctx, userID)
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "password changed, sessions invalidated",
		slog.String("user_id", userID), slog.Int("sessions_removed", count))

	return nil
}

// GetUserByID returns the user with empty roles and permissions: no
// RBAC surface exists locally.
func (p *LocalProvider) GetUserByID(ctx context.Context, userID string) (*models.AuthenticatedUser, error) {
	user, err := p.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.AuthenticatedUser{
		User:        *user,
		Roles:       []string{},
		Permissions: []string{},
	}, nil
}

// HasPermission unconditionally allows in solo mode.
func (p *LocalProvider) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	return true, nil
}

var _ Provider = (*LocalProvider)(nil)
