package models

import "time"

// AppInfo is the published identity of one team-server instance: an
// opaque server ID, the owning team, and the Ed25519 public key whose
// private half never leaves the attestation service.
type AppInfo struct {
	ServerID  string    `json:"server_id"`  // UUID, minted once at team init
	TeamID    string    `json:"team_id"`
	TeamName  string    `json:"team_name"`
	PublicKey string    `json:"public_key"` // base64 raw Ed25519 public key
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttestationPayload is the signed statement a team server vouches for.
// Expiry is a payload field: signature verification alone never enforces
// it, callers must check ExpiresAt separately.
type AttestationPayload struct {
	SubjectID string `json:"subject_id"`
	ServerID  string `json:"server_id"`
	IssuedAt  int64  `json:"issued_at"`  // unix seconds
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// Attestation is an ephemeral payload plus a detached Ed25519 signature
// over the payload's canonical encoding. Never persisted.
type Attestation struct {
	Payload   AttestationPayload `json:"payload"`
	Signature string             `json:"signature"` // base64 raw 64-byte signature
}
