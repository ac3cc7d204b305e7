package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// OwnerResolver looks up the recorded owner of a resource. Supplied by
// the route handling the resource, since only it knows which table the
// resource lives in.
type OwnerResolver func(ctx context.Context) (ownerEmail string, err error)

// Engine evaluates team-scoped authorization predicates: minimum role,
// resource/action permission, and the member-tier ownership override.
type Engine struct {
	logger *slog.Logger
	store  storage.RBACStorage
}

// NewEngine creates an RBAC engine over the shared store.
func NewEngine(logger *slog.Logger, store storage.RBACStorage) *Engine {
	return &Engine{logger: logger, store: store}
}

// MemberRole resolves the caller's membership in the team.
// Returns ErrNotAMember if the email has no membership record.
func (e *Engine) MemberRole(ctx context.Context, teamID, email string) (*models.TeamMember, error) {
	member, err := e.store.GetMemberRole(ctx, teamID, email)
	if err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			return nil, ErrNotAMember
		}
		return nil, fmt.Errorf("failed to resolve member role: %w", err)
	}
	return member, nil
}

// RequireMinimumRole fails ErrNotAMember if the caller has no
// membership, ErrInsufficientRole if their role ranks below min. The
// hierarchy is totally ordered: owner implies admin implies member.
func (e *Engine) RequireMinimumRole(ctx context.Context, teamID, email string, min models.TeamRole) (*models.TeamMember, error) {
	if !min.Valid() {
		return nil, ErrInvalidRole
	}

	member, err := e.MemberRole(ctx, teamID, email)
	if err != nil {
		return nil, err
	}

	if !member.Role.AtLeast(min) {
		return nil, ErrInsufficientRole
	}

	return member, nil
}

// RequirePermission fails ErrPermissionDenied unless a resource/action
// grant exists for the caller in the team.
func (e *Engine) RequirePermission(ctx context.Context, teamID, email, resource, action string) error {
	ok, err := e.store.HasPermission(ctx, teamID, email, resource, action)
	if err != nil {
		return fmt.Errorf("failed to check permission: %w", err)
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// RequireMutation applies the two-tier mutation model: admin and owner
// mutate anything in the team, a member may only mutate resources they
// own. resolveOwner is consulted only for the member tier.
func (e *Engine) RequireMutation(ctx context.Context, teamID, email string, resolveOwner OwnerResolver) error {
	member, err := e.MemberRole(ctx, teamID, email)
	if err != nil {
		return err
	}

	if member.Role.AtLeast(models.RoleAdmin) {
		return nil
	}

	owner, err := resolveOwner(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve resource owner: %w", err)
	}
	if owner != email {
		return ErrNotOwner
	}

	return nil
}

// ChangeMemberRole updates a member's role subject to the hierarchy
// rules: only an owner may promote to owner or change an existing
// owner's role; everyone else needs at least admin.
func (e *Engine) ChangeMemberRole(ctx context.Context, teamID, actorEmail, targetEmail string, newRole models.TeamRole) error {
	if !newRole.Valid() {
		return ErrInvalidRole
	}

	actor, err := e.RequireMinimumRole(ctx, teamID, actorEmail, models.RoleAdmin)
	if err != nil {
		return err
	}

	target, err := e.MemberRole(ctx, teamID, targetEmail)
	if err != nil {
		return err
	}

	// Owner promotion and demotion are owner-only operations
	if (newRole == models.RoleOwner || target.Role == models.RoleOwner) && actor.Role != models.RoleOwner {
		return ErrInsufficientRole
	}

	target.Role = newRole
	if err := e.store.UpsertTeamMember(ctx, target); err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	e.logger.InfoContext(ctx, "team member role changed",
		slog.String("team_id", teamID),
		slog.String("target", targetEmail),
		slog.String("new_role", string(newRole)),
		slog.String("actor", actorEmail))

	return nil
}

// RemoveMember deletes a membership subject to the hierarchy rules:
// nobody removes an owner, and an admin may not remove another admin.
func (e *Engine) RemoveMember(ctx context.Context, teamID, actorEmail, targetEmail string) error {
	actor, err := e.RequireMinimumRole(ctx, teamID, actorEmail, models.RoleAdmin)
	if err != nil {
		return err
	}

	target, err := e.MemberRole(ctx, teamID, targetEmail)
	if err != nil {
		return err
	}

	if target.Role == models.RoleOwner {
		return ErrInsufficientRole
	}
	if target.Role == models.RoleAdmin && actor.Role != models.RoleOwner {
		return ErrInsufficientRole
	}

	if err := e.store.RemoveTeamMember(ctx, teamID, targetEmail); err != nil {
		if errors.Is(err, storage.ErrMemberNotFound) {
			return ErrNotAMember
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}

	e.logger.InfoContext(ctx, "team member removed",
		slog.String("team_id", teamID),
		slog.String("target", targetEmail),
		slog.String("actor", actorEmail))

	return nil
}
