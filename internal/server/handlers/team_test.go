package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/attest"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rbac"
	"github.com/opsdeck/opsdeck/internal/server/middleware"
	"github.com/opsdeck/opsdeck/internal/storage"
	"github.com/opsdeck/opsdeck/internal/storage/boltdb"
	"github.com/opsdeck/opsdeck/internal/storage/sqlite"
	"github.com/opsdeck/opsdeck/pkg/api"
)

type memRBAC struct {
	mu      sync.Mutex
	members map[string]*models.TeamMember
}

func newMemRBAC() *memRBAC {
	return &memRBAC{members: make(map[string]*models.TeamMember)}
}

func (m *memRBAC) key(teamID, email string) string { return teamID + "/" + email }

func (m *memRBAC) addMember(teamID, email string, role models.TeamRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[m.key(teamID, email)] = &models.TeamMember{TeamID: teamID, Email: email, Role: role}
}

func (m *memRBAC) GetRolesForUser(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (m *memRBAC) GetPermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (m *memRBAC) GetMemberRole(ctx context.Context, teamID, email string) (*models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[m.key(teamID, email)]
	if !ok {
		return nil, storage.ErrMemberNotFound
	}
	cp := *member
	return &cp, nil
}

func (m *memRBAC) ListTeamMembers(ctx context.Context, teamID string) ([]*models.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TeamMember
	for _, member := range m.members {
		if member.TeamID == teamID {
			cp := *member
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRBAC) UpsertTeamMember(ctx context.Context, member *models.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.members[m.key(member.TeamID, member.Email)] = &cp
	return nil
}

func (m *memRBAC) RemoveTeamMember(ctx context.Context, teamID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(teamID, email)
	if _, ok := m.members[k]; !ok {
		return storage.ErrMemberNotFound
	}
	delete(m.members, k)
	return nil
}

func (m *memRBAC) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	return false, nil
}

// setupTeamStack builds the team handler over real local stores and an
// in-memory membership table. The caller resolver reads the identity
// the test injected into the request context.
func setupTeamStack(t *testing.T) (*TeamHandler, *memRBAC, *attest.Service) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bolt, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	svc := attest.NewService(slog.Default(), store, bolt, bolt)
	rbacStore := newMemRBAC()
	engine := rbac.NewEngine(slog.Default(), rbacStore)

	caller := func(r *http.Request) (string, error) {
		email, ok := middleware.UserIDFrom(r.Context())
		if !ok {
			return "", errors.New("no identity in context")
		}
		return email, nil
	}

	return NewTeamHandler(slog.Default(), svc, engine, caller), rbacStore, svc
}

func teamRequest(t *testing.T, method, path string, body any, email, teamID string) *http.Request {
	t.Helper()
	req := authedRequest(t, method, path, body, email)
	req.SetPathValue("teamID", teamID)
	return req
}

func TestTeamHandler_InitAttestation_OwnerOnly(t *testing.T) {
	h, members, _ := setupTeamStack(t)
	members.addMember("team-1", "owner@example.com", models.RoleOwner)
	members.addMember("team-1", "admin@example.com", models.RoleAdmin)

	req := teamRequest(t, http.MethodPost, "/api/v1/team/team-1/attestation/init",
		map[string]string{"team_name": "Platform"}, "owner@example.com", "team-1")
	rec := httptest.NewRecorder()
	h.InitAttestation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var info models.AppInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.NotEmpty(t, info.ServerID)
	assert.NotEmpty(t, info.PublicKey)
	assert.Equal(t, "team-1", info.TeamID)

	// Even an admin is below the bar for initialization
	req = teamRequest(t, http.MethodPost, "/api/v1/team/team-1/attestation/init",
		map[string]string{"team_name": "Platform"}, "admin@example.com", "team-1")
	rec = httptest.NewRecorder()
	h.InitAttestation(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTeamHandler_InitAttestation_NotAMember(t *testing.T) {
	h, _, _ := setupTeamStack(t)

	req := teamRequest(t, http.MethodPost, "/api/v1/team/team-1/attestation/init",
		map[string]string{"team_name": "Platform"}, "stranger@example.com", "team-1")
	rec := httptest.NewRecorder()
	h.InitAttestation(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, api.CodeNotAMember, errResp.Code)
}

func TestTeamHandler_GetAppInfo(t *testing.T) {
	h, members, svc := setupTeamStack(t)
	members.addMember("team-1", "member@example.com", models.RoleMember)

	req := teamRequest(t, http.MethodGet, "/api/v1/team/team-1/attestation", nil,
		"member@example.com", "team-1")
	rec := httptest.NewRecorder()
	h.GetAppInfo(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := svc.InitializeAppInfo(context.Background(), "team-1", "Platform")
	require.NoError(t, err)

	req = teamRequest(t, http.MethodGet, "/api/v1/team/team-1/attestation", nil,
		"member@example.com", "team-1")
	rec = httptest.NewRecorder()
	h.GetAppInfo(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var info models.AppInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "team-1", info.TeamID)
}

func TestTeamHandler_GenerateAttestation(t *testing.T) {
	h, members, svc := setupTeamStack(t)
	members.addMember("team-1", "member@example.com", models.RoleMember)

	info, err := svc.InitializeAppInfo(context.Background(), "team-1", "Platform")
	require.NoError(t, err)

	req := teamRequest(t, http.MethodPost, "/api/v1/team/team-1/attestation",
		api.AttestationRequest{SubjectID: "board-42"}, "member@example.com", "team-1")
	rec := httptest.NewRecorder()
	h.GenerateAttestation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AttestationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "board-42", resp.Payload.SubjectID)
	assert.Equal(t, info.ServerID, resp.Payload.ServerID)
	assert.NotEmpty(t, resp.Signature)
}

func TestTeamHandler_GenerateAttestation_MissingSubject(t *testing.T) {
	h, members, svc := setupTeamStack(t)
	members.addMember("team-1", "member@example.com", models.RoleMember)

	_, err := svc.InitializeAppInfo(context.Background(), "team-1", "Platform")
	require.NoError(t, err)

	req := teamRequest(t, http.MethodPost, "/api/v1/team/team-1/attestation",
		api.AttestationRequest{}, "member@example.com", "team-1")
	rec := httptest.NewRecorder()
	h.GenerateAttestation(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamHandler_VerifyAttestation(t *testing.T) {
	h, members, svc := setupTeamStack(t)
	members.addMember("team-1", "member@example.com", models.RoleMember)

	info, err := svc.InitializeAppInfo(context.Background(), "team-1", "Platform")
	require.NoError(t, err)

	att, err := svc.GenerateAttestation(context.Background(), "team-1", "board-42")
	require.NoError(t, err)

	verifyReq := api.VerifyAttestationRequest{
		Attestation: api.AttestationResponse{
			Payload: api.AttestationPayload{
				SubjectID: att.Payload.SubjectID,
				ServerID:  att.Payload.ServerID,
				IssuedAt:  att.Payload.IssuedAt,
				ExpiresAt: att.Payload.ExpiresAt,
			},
			Signature: att.Signature,
		},
		PublicKey: info.PublicKey,
	}

	// Verification needs no authentication, only the public key
	rec := postJSON(t, h.VerifyAttestation, "/api/v1/team/attestation/verify", verifyReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.VerifyAttestationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	assert.False(t, resp.Expired)

	// A tampered payload fails the signature check
	verifyReq.Attestation.Payload.SubjectID = "board-43"
	rec = postJSON(t, h.VerifyAttestation, "/api/v1/team/attestation/verify", verifyReq)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
}

func TestTeamHandler_ChangeMemberRole(t *testing.T) {
	h, members, _ := setupTeamStack(t)
	members.addMember("team-1", "admin@example.com", models.RoleAdmin)
	members.addMember("team-1", "bob@example.com", models.RoleMember)

	req := teamRequest(t, http.MethodPut, "/api/v1/team/team-1/members/bob@example.com/role",
		map[string]string{"role": "admin"}, "admin@example.com", "team-1")
	req.SetPathValue("email", "bob@example.com")
	rec := httptest.NewRecorder()
	h.ChangeMemberRole(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	bob, err := members.GetMemberRole(context.Background(), "team-1", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, bob.Role)
}

func TestTeamHandler_ChangeMemberRole_MemberForbidden(t *testing.T) {
	h, members, _ := setupTeamStack(t)
	members.addMember("team-1", "bob@example.com", models.RoleMember)
	members.addMember("team-1", "carol@example.com", models.RoleMember)

	req := teamRequest(t, http.MethodPut, "/api/v1/team/team-1/members/carol@example.com/role",
		map[string]string{"role": "admin"}, "bob@example.com", "team-1")
	req.SetPathValue("email", "carol@example.com")
	rec := httptest.NewRecorder()
	h.ChangeMemberRole(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	carol, err := members.GetMemberRole(context.Background(), "team-1", "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, carol.Role)
}

func TestTeamHandler_RemoveMember(t *testing.T) {
	h, members, _ := setupTeamStack(t)
	members.addMember("team-1", "admin@example.com", models.RoleAdmin)
	members.addMember("team-1", "bob@example.com", models.RoleMember)
	members.addMember("team-1", "owner@example.com", models.RoleOwner)

	req := teamRequest(t, http.MethodDelete, "/api/v1/team/team-1/members/bob@example.com", nil,
		"admin@example.com", "team-1")
	req.SetPathValue("email", "bob@example.com")
	rec := httptest.NewRecorder()
	h.RemoveMember(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := members.GetMemberRole(context.Background(), "team-1", "bob@example.com")
	assert.ErrorIs(t, err, storage.ErrMemberNotFound)

	// The owner is not removable
	req = teamRequest(t, http.MethodDelete, "/api/v1/team/team-1/members/owner@example.com", nil,
		"admin@example.com", "team-1")
	req.SetPathValue("email", "owner@example.com")
	rec = httptest.NewRecorder()
	h.RemoveMember(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTeamHandler_Unauthenticated(t *testing.T) {
	h, _, _ := setupTeamStack(t)

	// No identity in the context at all
	req := httptest.NewRequest(http.MethodGet, "/api/v1/team/team-1/attestation", nil)
	req.SetPathValue("teamID", "team-1")
	rec := httptest.NewRecorder()
	h.GetAppInfo(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
