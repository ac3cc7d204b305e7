package api

// Error codes surfaced by the core. 401-family codes mean
// re-authenticate or refresh; 403-family codes are terminal for the
// request but actionable for the client UI.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeNotAMember       = "NOT_A_MEMBER"
	CodeInsufficientRole = "INSUFFICIENT_ROLE"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotOwner         = "NOT_OWNER"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
)

// ErrorResponse is the error envelope for all endpoints
type ErrorResponse struct {
	Code    string `json:"code"`              // machine-readable error code
	Message string `json:"message,omitempty"` // human-readable detail, never sensitive
}

// RegisterRequest creates a new local user
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterResponse confirms a successful registration
type RegisterResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// LoginRequest authenticates a username/password pair
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly minted token pair
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
	SessionID    string `json:"session_id"`
}

// RefreshRequest rotates the token pair behind a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest ends the session behind a refresh token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest replaces the caller's password and invalidates
// all of their sessions
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}
