package models

import "time"

// TeamRole is one tier of the ordered team role hierarchy.
type TeamRole string

const (
	RoleMember TeamRole = "member"
	RoleAdmin  TeamRole = "admin"
	RoleOwner  TeamRole = "owner"
)

// roleRanks orders the hierarchy: owner implies admin implies member.
var roleRanks = map[TeamRole]int{
	RoleMember: 0,
	RoleAdmin:  1,
	RoleOwner:  2,
}

// Rank returns the numeric rank of the role, or -1 for an unknown role.
func (r TeamRole) Rank() int {
	rank, ok := roleRanks[r]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether the role is one of the known tiers.
func (r TeamRole) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// AtLeast reports whether the role ranks at or above min.
func (r TeamRole) AtLeast(min TeamRole) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

// TeamMember binds an email to a role within a team. Membership is keyed
// by email, not user ID: authentication is always local, team membership
// lives in the shared database.
type TeamMember struct {
	TeamID      string    `json:"team_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        TeamRole  `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named permission group in the shared RBAC schema.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsSystem bool   `json:"is_system"` // system roles cannot be deleted
}

// Permission is a resource/action capability derived through roles.
type Permission struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}
