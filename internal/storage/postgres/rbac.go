package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

var _ storage.RBACStorage = (*Storage)(nil)

// GetRolesForUser returns role names acquired through the user_roles join table
func (s *Storage) GetRolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// GetPermissionsForUser returns "resource:action" keys derived through roles
func (s *Storage) GetPermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.resource || ':' || p.action
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, key)
	}
	return perms, rows.Err()
}

// GetMemberRole returns the caller's membership record in the team
func (s *Storage) GetMemberRole(ctx context.Context, teamID, email string) (*models.TeamMember, error) {
	member := &models.TeamMember{}
	err := s.db.QueryRowContext(ctx, `
		SELECT team_id, email, display_name, role, created_at, updated_at
		FROM team_members
		WHERE team_id = $1 AND email = $2
	`, teamID, email).Scan(
		&member.TeamID,
		&member.Email,
		&member.DisplayName,
		&member.Role,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrMemberNotFound
		}
		return nil, fmt.Errorf("query team member: %w", err)
	}
	return member, nil
}

// ListTeamMembers returns all members of the team
func (s *Storage) ListTeamMembers(ctx context.Context, teamID string) ([]*models.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, email, display_name, role, created_at, updated_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY email
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query team members: %w", err)
	}
	defer rows.Close()

	var members []*models.TeamMember
	for rows.Next() {
		member := &models.TeamMember{}
		if err := rows.Scan(
			&member.TeamID,
			&member.Email,
			&member.DisplayName,
			&member.Role,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// UpsertTeamMember creates or updates a membership record
func (s *Storage) UpsertTeamMember(ctx context.Context, member *models.TeamMember) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, email, display_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (team_id, email)
		DO UPDATE SET display_name = excluded.display_name, role = excluded.role, updated_at = excluded.updated_at
	`, member.TeamID, member.Email, member.DisplayName, member.Role, now)
	if err != nil {
		return fmt.Errorf("upsert team member: %w", err)
	}
	return nil
}

// RemoveTeamMember deletes a membership record
func (s *Storage) RemoveTeamMember(ctx context.Context, teamID, email string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM team_members WHERE team_id = $1 AND email = $2
	`, teamID, email)
	if err != nil {
		return fmt.Errorf("delete team member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrMemberNotFound
	}
	return nil
}

// HasPermission consults the team permission table for a resource/action grant
func (s *Storage) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM team_permissions
			WHERE team_id = $1 AND email = $2 AND resource = $3 AND action = $4
		)
	`, teamID, email, resource, action).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query team permission: %w", err)
	}
	return exists, nil
}
