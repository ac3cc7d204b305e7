package identity

import (
	"context"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/mode"
	"github.com/opsdeck/opsdeck/internal/models"
)

// LoginResult is the token pair and session minted by a successful
// login or refresh.
type LoginResult struct {
	User         *models.User `json:"user"`
	SessionID    string       `json:"session_id"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"` // access token lifetime in seconds
}

// Provider is the identity capability handed to the HTTP layer.
// Authentication always resolves locally; implementations differ only
// in where authorization data comes from.
type Provider interface {
	// Login authenticates a username/password pair and mints a session.
	// Unknown username and wrong password produce the identical
	// ErrInvalidCredentials.
	Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error)

	// VerifyAccessToken validates a bearer token and returns its claims.
	VerifyAccessToken(ctx context.Context, token string) (*auth.Claims, error)

	// RefreshTokens rotates the token pair behind a valid refresh token.
	RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error)

	// Logout never fails from the caller's perspective: an invalid or
	// expired token still reports success, the end state is identical.
	Logout(ctx context.Context, refreshToken string) error

	// GetUserByID returns the user decorated with the roles and
	// permissions the current mode provides.
	GetUserByID(ctx context.Context, userID string) (*models.AuthenticatedUser, error)

	// HasPermission checks a team-scoped resource/action grant. Solo
	// mode has no RBAC surface and always allows.
	HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error)
}

// Facade routes identity calls to the local or shared variant based on
// the mode resolver's current reading, selected once per call. There
// are no mode checks anywhere else.
type Facade struct {
	resolver *mode.Resolver
	local    *LocalProvider
	shared   *SharedProvider // nil when no shared backend is configured
}

// NewFacade creates the mode-aware identity provider.
func NewFacade(resolver *mode.Resolver, local *LocalProvider, shared *SharedProvider) *Facade {
	return &Facade{resolver: resolver, local: local, shared: shared}
}

func (f *Facade) pick(ctx context.Context) Provider {
	if f.shared != nil && f.resolver.Mode(ctx) == mode.ModeShared {
		return f.shared
	}
	return f.local
}

// Login always authenticates locally: team connectivity must never gate
// whether a user can open the application.
func (f *Facade) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	return f.local.Login(ctx, username, password, ip, userAgent)
}

// VerifyAccessToken always verifies against the local codec. Tokens are
// never accepted by "the other" provider: a reachable team database
// must not be able to mint local access.
func (f *Facade) VerifyAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	return f.local.VerifyAccessToken(ctx, token)
}

// RefreshTokens always rotates locally.
func (f *Facade) RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error) {
	return f.local.RefreshTokens(ctx, refreshToken)
}

// Logout always resolves locally and never fails.
func (f *Facade) Logout(ctx context.Context, refreshToken string) error {
	return f.local.Logout(ctx, refreshToken)
}

// GetUserByID sources authorization data from the current mode's provider.
func (f *Facade) GetUserByID(ctx context.Context, userID string) (*models.AuthenticatedUser, error) {
	return f.pick(ctx).GetUserByID(ctx, userID)
}

// HasPermission delegates to the current mode's provider.
func (f *Facade) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	return f.pick(ctx).HasPermission(ctx, teamID, email, resource, action)
}

var _ Provider = (*Facade)(nil)
