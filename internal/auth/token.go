package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsdeck/opsdeck/internal/storage"
)

// Token type discriminator carried in claims so a refresh token can
// never be accepted where an access token is required.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// signingSecretKey is the settings-store key holding the HMAC secret.
const signingSecretKey = "auth.signing_secret"

const tokenIssuer = "opsdeck"

// Claims are the JWT claims for both token types.
type Claims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TTLSource supplies the current token lifetimes. Reading them per
// issue keeps token expiry in step with runtime config changes.
type TTLSource interface {
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// TokenCodec signs and verifies access/refresh tokens. The HMAC secret
// is created lazily on first use and persisted in the settings store;
// the mutex plus the store's insert-if-absent upsert make concurrent
// cold-start callers converge on one secret.
type TokenCodec struct {
	settings storage.SettingsStorage

	mu     sync.Mutex
	secret []byte

	ttl TTLSource
}

// NewTokenCodec creates a token codec backed by the settings store.
func NewTokenCodec(settings storage.SettingsStorage, ttl TTLSource) *TokenCodec {
	return &TokenCodec{
		settings: settings,
		ttl:      ttl,
	}
}

// loadSecret returns the signing secret, creating and persisting it on
// first call. Single-flight within the process; SetSettingIfAbsent
// resolves races with other processes sharing the store.
func (c *TokenCodec) loadSecret(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.secret != nil {
		return c.secret, nil
	}

	fresh := make([]byte, 32)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(fresh))

	stored, err := c.settings.SetSettingIfAbsent(ctx, signingSecretKey, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to persist signing secret: %w", err)
	}

	secret, err := base64.StdEncoding.DecodeString(string(stored))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored signing secret: %w", err)
	}

	c.secret = secret
	return secret, nil
}

// IssueAccessToken creates a signed access token for the user.
func (c *TokenCodec) IssueAccessToken(ctx context.Context, userID, username string) (string, error) {
	return c.issue(ctx, userID, username, TokenTypeAccess, c.ttl.AccessTokenTTL())
}

// IssueRefreshToken creates a signed refresh token for the user.
func (c *TokenCodec) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	return c.issue(ctx, userID, "", TokenTypeRefresh, c.ttl.RefreshTokenTTL())
}

func (c *TokenCodec) issue(ctx context.Context, userID, username, tokenType string, ttl time.Duration) (string, error) {
	secret, err := c.loadSecret(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyToken validates signature and expiry and returns the claims.
// Returns ErrTokenExpired for expired tokens, ErrInvalidToken otherwise.
func (c *TokenCodec) VerifyToken(ctx context.Context, tokenString string) (*Claims, error) {
	secret, err := c.loadSecret(ctx)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyAccessToken verifies the token and requires the access type.
func (c *TokenCodec) VerifyAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	return c.verifyTyped(ctx, tokenString, TokenTypeAccess)
}

// VerifyRefreshToken verifies the token and requires the refresh type.
func (c *TokenCodec) VerifyRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	return c.verifyTyped(ctx, tokenString, TokenTypeRefresh)
}

func (c *TokenCodec) verifyTyped(ctx context.Context, tokenString, wantType string) (*Claims, error) {
	claims, err := c.VerifyToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// HashToken returns the sha256 hex digest used to key session rows.
// Tokens themselves are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
