// Package attest implements the team-server identity: an Ed25519
// signing keypair minted once per team, a published public key, and
// detached signatures over canonically encoded attestation payloads.
package attest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// privateKeyPrefix namespaces the per-team signing keys in the secret
// store. One fixed key would let a second team's initialization
// overwrite the first team's private half while its published public
// key stays live.
const privateKeyPrefix = "attestation.signing_key:"

func privateKeyName(teamID string) string {
	return privateKeyPrefix + teamID
}

// DefaultAttestationTTL bounds how long a signed attestation stays
// trustworthy. Expiry is a payload field: verification does not enforce
// it, callers must check it separately.
const DefaultAttestationTTL = 5 * time.Minute

// ErrNotInitialized indicates no server identity exists yet.
var ErrNotInitialized = errors.New("attestation identity not initialized")

// Service generates and uses the per-team signing keypairs. The
// private keys live only in the restricted secret store; nothing
// outside this package can reach them.
type Service struct {
	logger  *slog.Logger
	appInfo storage.AppInfoStorage
	secrets storage.SecretStorage
	binding BindingStore

	// single-flight guard: concurrent cold-start initializations must
	// not race to create two keypairs
	mu sync.Mutex

	ttl time.Duration
	now func() time.Time
}

// BindingStore persists which team server identity this installation
// currently trusts.
type BindingStore interface {
	SaveTeamBinding(ctx context.Context, info *models.AppInfo) error
	GetTeamBinding(ctx context.Context) (*models.AppInfo, error)
	ClearTeamBinding(ctx context.Context) error
}

// NewService creates the attestation service.
func NewService(logger *slog.Logger, appInfo storage.AppInfoStorage, secrets storage.SecretStorage, binding BindingStore) *Service {
	return &Service{
		logger:  logger,
		appInfo: appInfo,
		secrets: secrets,
		binding: binding,
		ttl:     DefaultAttestationTTL,
		now:     time.Now,
	}
}

// InitializeAppInfo mints the server identity for a team: a fresh
// Ed25519 keypair with the public half published in AppInfo and the
// private half stored in the secret store. Idempotent per team: a
// second call returns the existing identity instead of silently
// orphaning the first keypair.
func (s *Service) InitializeAppInfo(ctx context.Context, teamID, teamName string) (*models.AppInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.appInfo.GetAppInfo(ctx, teamID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrAppInfoNotFound) {
		return nil, fmt.Errorf("failed to check existing app info: %w", err)
	}

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 keypair: %w", err)
	}

	// Private key first: losing it after publishing the public key
	// would leave an identity nothing can sign for
	if err := s.secrets.PutSecret(ctx, privateKeyName(teamID), private); err != nil {
		return nil, fmt.Errorf("failed to store private key: %w", err)
	}

	now := s.now().UTC()
	info := &models.AppInfo{
		ServerID:  uuid.New().String(),
		TeamID:    teamID,
		TeamName:  teamName,
		PublicKey: base64.StdEncoding.EncodeToString(public),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.appInfo.CreateAppInfo(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to persist app info: %w", err)
	}

	s.logger.InfoContext(ctx, "team server identity initialized",
		slog.String("team_id", teamID), slog.String("server_id", info.ServerID))

	return info, nil
}

// GetAppInfo returns the published identity for the team.
func (s *Service) GetAppInfo(ctx context.Context, teamID string) (*models.AppInfo, error) {
	info, err := s.appInfo.GetAppInfo(ctx, teamID)
	if err != nil {
		if errors.Is(err, storage.ErrAppInfoNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return info, nil
}

// GenerateAttestation signs a payload binding the subject to this
// server instance. The signature is detached and covers the canonical
// payload encoding.
func (s *Service) GenerateAttestation(ctx context.Context, teamID, subjectID string) (*models.Attestation, error) {
	info, err := s.GetAppInfo(ctx, teamID)
	if err != nil {
		return nil, err
	}

	keyBytes, err := s.secrets.GetSecret(ctx, privateKeyName(teamID))
	if err != nil {
		if errors.Is(err, storage.ErrSecretNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has %d bytes, want %d", len(keyBytes), ed25519.PrivateKeySize)
	}

	now := s.now().UTC()
	payload := models.AttestationPayload{
		SubjectID: subjectID,
		ServerID:  info.ServerID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	signature := ed25519.Sign(ed25519.PrivateKey(keyBytes), CanonicalPayload(payload))

	return &models.Attestation{
		Payload:   payload,
		Signature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// VerifyAttestation recomputes the canonical payload encoding and
// checks the detached signature against the offered public key.
// "Did not verify" is an expected outcome, reported as false, not an
// error. Expiry is NOT checked here: cryptographic validity and current
// trustworthiness are separate questions — use Expired for the latter.
func VerifyAttestation(att *models.Attestation, publicKeyB64 string) bool {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(att.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), CanonicalPayload(att.Payload), signature)
}

// Expired reports whether the payload's expiry has passed.
func Expired(att *models.Attestation, now time.Time) bool {
	return now.Unix() >= att.Payload.ExpiresAt
}

// CanonicalPayload serializes the payload with a fixed field order and
// encoding. Serializer defaults are not canonical: an equivalent but
// differently encoded payload would silently fail cross-implementation
// verification, so the bytes are built by hand.
func CanonicalPayload(p models.AttestationPayload) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, `{"subject_id":`...)
	buf = strconv.AppendQuote(buf, p.SubjectID)
	buf = append(buf, `,"server_id":`...)
	buf = strconv.AppendQuote(buf, p.ServerID)
	buf = append(buf, `,"issued_at":`...)
	buf = strconv.AppendInt(buf, p.IssuedAt, 10)
	buf = append(buf, `,"expires_at":`...)
	buf = strconv.AppendInt(buf, p.ExpiresAt, 10)
	buf = append(buf, '}')
	return buf
}

// StoreTeamBinding records the team server identity this installation
// trusts, used to detect being pointed at a different team database.
func (s *Service) StoreTeamBinding(ctx context.Context, info *models.AppInfo) error {
	return s.binding.SaveTeamBinding(ctx, info)
}

// TrustedBinding returns the currently trusted identity.
// Returns storage.ErrAppInfoNotFound when no binding is stored.
func (s *Service) TrustedBinding(ctx context.Context) (*models.AppInfo, error) {
	return s.binding.GetTeamBinding(ctx)
}

// ClearTeamBinding erases the trusted identity.
func (s *Service) ClearTeamBinding(ctx context.Context) error {
	return s.binding.ClearTeamBinding(ctx)
}
