package api

import "time"

// SessionCheckRequest validates the session behind a refresh token
type SessionCheckRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionCheckResponse reports session liveness and whether the client
// should refresh proactively
type SessionCheckResponse struct {
	Valid         bool      `json:"valid"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	ShouldRefresh bool      `json:"should_refresh"`
}

// HeartbeatRequest records activity on the caller's session
type HeartbeatRequest struct {
	SessionID string `json:"session_id"`
}

// SessionInfo is one entry in a user's session listing
type SessionInfo struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// SessionListResponse lists the caller's active sessions
type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// ModeStatusResponse is the diagnostics view of the mode decision
type ModeStatusResponse struct {
	Mode              string `json:"mode"`
	SharedEnabled     bool   `json:"shared_enabled"`
	SharedDBConnected bool   `json:"shared_db_connected"`
}

// AttestationRequest asks the team server to vouch for a subject
type AttestationRequest struct {
	TeamID    string `json:"team_id"`
	SubjectID string `json:"subject_id"`
}

// AttestationPayload mirrors the signed payload fields
type AttestationPayload struct {
	SubjectID string `json:"subject_id"`
	ServerID  string `json:"server_id"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// AttestationResponse carries a signed attestation
type AttestationResponse struct {
	Payload   AttestationPayload `json:"payload"`
	Signature string             `json:"signature"`
}

// VerifyAttestationRequest checks an attestation against a public key
type VerifyAttestationRequest struct {
	Attestation AttestationResponse `json:"attestation"`
	PublicKey   string              `json:"public_key"`
}

// VerifyAttestationResponse reports both cryptographic validity and the
// separate expiry check
type VerifyAttestationResponse struct {
	Valid   bool `json:"valid"`   // signature verifies against the key
	Expired bool `json:"expired"` // payload expiry has passed
}
