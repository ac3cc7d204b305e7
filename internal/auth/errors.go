package auth

import "errors"

// Authentication failure taxonomy. All of these map to a 401 at the HTTP
// boundary; the distinction exists so clients can render actionable
// messaging, never so callers can tell why a credential was rejected.
var (
	// ErrInvalidCredentials covers both unknown username and wrong
	// password — deliberately indistinguishable
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserDisabled indicates the account's active flag is false
	ErrUserDisabled = errors.New("user is disabled")

	// ErrInvalidToken indicates a malformed or wrongly-signed token
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a well-formed token past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionExpired indicates the session behind the token is gone
	// or timed out
	ErrSessionExpired = errors.New("session expired")

	// ErrWrongTokenType indicates a refresh token offered where an
	// access token is required, or vice versa
	ErrWrongTokenType = errors.New("wrong token type")
)
