package storage

import (
	"context"

	"github.com/opsdeck/opsdeck/internal/models"
)

// RBACStorage resolves roles, permissions and team membership from the
// shared relational backend. Shared mode only; solo mode never touches it.
type RBACStorage interface {
	// GetRolesForUser returns role names acquired through the user_roles
	// join table
	GetRolesForUser(ctx context.Context, userID string) ([]string, error)

	// GetPermissionsForUser returns "resource:action" keys derived
	// transitively through the user's roles
	GetPermissionsForUser(ctx context.Context, userID string) ([]string, error)

	// GetMemberRole returns the caller's membership record in the team
	// Returns ErrMemberNotFound if the email is not a member
	GetMemberRole(ctx context.Context, teamID, email string) (*models.TeamMember, error)

	// ListTeamMembers returns all members of the team
	ListTeamMembers(ctx context.Context, teamID string) ([]*models.TeamMember, error)

	// UpsertTeamMember creates or updates a membership record
	UpsertTeamMember(ctx context.Context, member *models.TeamMember) error

	// RemoveTeamMember deletes a membership record
	// Returns ErrMemberNotFound if absent
	RemoveTeamMember(ctx context.Context, teamID, email string) error

	// HasPermission consults the permission table for a team-scoped
	// resource/action grant
	HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error)
}

// AppInfoStorage persists the published team-server identity.
type AppInfoStorage interface {
	// GetAppInfo returns the identity record for the team
	// Returns ErrAppInfoNotFound if the team was never initialized
	GetAppInfo(ctx context.Context, teamID string) (*models.AppInfo, error)

	// CreateAppInfo stores a new identity record; fails if one already
	// exists for the team so concurrent initialization cannot orphan a
	// keypair
	CreateAppInfo(ctx context.Context, info *models.AppInfo) error
}
