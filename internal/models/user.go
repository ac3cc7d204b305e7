package models

import "time"

// User is the local identity record. Authentication always resolves
// against this record regardless of solo/shared mode.
type User struct {
	ID           string    `json:"id"`           // UUID
	Username     string    `json:"username"`     // unique login name
	Email        string    `json:"email"`        // unique; also the team membership key in shared mode
	PasswordHash string    `json:"-"`            // bcrypt hash, never serialized
	DisplayName  string    `json:"display_name"` // shown in the UI
	Active       bool      `json:"active"`       // deactivated users cannot log in
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthenticatedUser is a User decorated with the authorization data the
// current mode provides. In solo mode Roles and Permissions are empty.
type AuthenticatedUser struct {
	User
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Session represents one authenticated device/browser lifetime.
//
// A session is valid iff now < ExpiresAt AND (inactivity lock disabled OR
// now - LastActivity < inactivity timeout).
type Session struct {
	ID               string    `json:"id"` // UUID
	UserID           string    `json:"user_id"`
	AccessTokenHash  string    `json:"-"`             // sha256 hex of the current access token
	RefreshTokenHash string    `json:"-"`             // sha256 hex of the refresh token
	ExpiresAt        time.Time `json:"expires_at"`    // absolute expiry
	LastActivity     time.Time `json:"last_activity"` // advanced by heartbeats
	CreatedAt        time.Time `json:"created_at"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
}

// SessionCheck is the result of validating a session against its expiry
// and inactivity rules.
type SessionCheck struct {
	Valid         bool      `json:"valid"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	ShouldRefresh bool      `json:"should_refresh"` // remaining TTL under the refresh threshold
}

// SessionConfig is the process-wide session tunable set. Loaded from the
// settings store merged over defaults; mutated only by explicit update.
type SessionConfig struct {
	AccessTokenTTLMinutes    int  `json:"access_token_ttl_minutes"`
	RefreshTokenTTLHours     int  `json:"refresh_token_ttl_hours"`
	InactivityTimeoutMinutes int  `json:"inactivity_timeout_minutes"`
	InactivityLockEnabled    bool `json:"inactivity_lock_enabled"`
	MaxConcurrentSessions    int  `json:"max_concurrent_sessions"`
	HeartbeatIntervalSeconds int  `json:"heartbeat_interval_seconds"`
}

// DefaultSessionConfig returns the hard-coded defaults persisted settings
// are merged over.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AccessTokenTTLMinutes:    15,
		RefreshTokenTTLHours:     7 * 24,
		InactivityTimeoutMinutes: 30,
		InactivityLockEnabled:    true,
		MaxConcurrentSessions:    5,
		HeartbeatIntervalSeconds: 60,
	}
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (c SessionConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c SessionConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHours) * time.Hour
}

// InactivityTimeout returns the inactivity window as a duration.
func (c SessionConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutMinutes) * time.Minute
}
