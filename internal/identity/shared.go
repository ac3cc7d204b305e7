package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// SharedProvider sources roles and permissions from the shared
// relational backend. Authentication still goes through the local
// provider: the shared variant only changes where authorization data
// comes from.
type SharedProvider struct {
	logger *slog.Logger
	local  *LocalProvider
	rbac   storage.RBACStorage
}

// NewSharedProvider creates the shared identity provider over the local
// one.
func NewSharedProvider(logger *slog.Logger, local *LocalProvider, rbac storage.RBACStorage) *SharedProvider {
	return &SharedProvider{logger: logger, local: local, rbac: rbac}
}

// Login delegates to the local provider.
func (p *SharedProvider) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	return p.local.Login(ctx, username, password, ip, userAgent)
}

// VerifyAccessToken delegates to the local provider.
func (p *SharedProvider) VerifyAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	return p.local.VerifyAccessToken(ctx, token)
}

// RefreshTokens delegates to the local provider.
func (p *SharedProvider) RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error) {
	return p.local.RefreshTokens(ctx, refreshToken)
}

// Logout delegates to the local provider.
func (p *SharedProvider) Logout(ctx context.Context, refreshToken string) error {
	return p.local.Logout(ctx, refreshToken)
}

// GetUserByID decorates the local user with roles and permissions from
// the shared backend.
func (p *SharedProvider) GetUserByID(ctx context.Context, userID string) (*models.AuthenticatedUser, error) {
	user, err := p.local.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	roles, err := p.rbac.GetRolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	perms, err := p.rbac.GetPermissionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	user.Roles = roles
	user.Permissions = perms
	return user, nil
}

// HasPermission consults the shared permission table. A query failure
// fails closed: deny, never grant.
func (p *SharedProvider) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	ok, err := p.rbac.HasPermission(ctx, teamID, email, resource, action)
	if err != nil {
		p.logger.WarnContext(ctx, "permission query failed, denying",
			slog.String("team_id", teamID), slog.String("resource", resource),
			slog.String("action", action), slog.Any("error", err))
		return false, err
	}
	return ok, nil
}

var _ Provider = (*SharedProvider)(nil)
