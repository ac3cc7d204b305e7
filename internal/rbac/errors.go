package rbac

import "errors"

// Authorization failure taxonomy. All of these map to a 403 at the HTTP
// boundary, with distinct codes so clients can render actionable
// messaging.
var (
	// ErrNotAMember indicates the email has no membership in the team
	ErrNotAMember = errors.New("not a member of the team")

	// ErrInsufficientRole indicates the member's role ranks below the
	// required minimum
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrPermissionDenied indicates no resource/action grant exists
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotOwner indicates a member-tier caller mutating a resource
	// they do not own
	ErrNotOwner = errors.New("not the resource owner")

	// ErrInvalidRole indicates a role name outside the hierarchy
	ErrInvalidRole = errors.New("invalid role")
)
