package identity

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// fakeRBAC scripts the shared backend's authorization answers.
type fakeRBAC struct {
	roles   []string
	perms   []string
	granted bool
	err     error
}

func (f *fakeRBAC) GetRolesForUser(ctx context.Context, userID string) ([]string, error) {
	return f.roles, f.err
}

func (f *fakeRBAC) GetPermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	return f.perms, f.err
}

func (f *fakeRBAC) GetMemberRole(ctx context.Context, teamID, email string) (*models.TeamMember, error) {
	return nil, storage.ErrMemberNotFound
}

func (f *fakeRBAC) ListTeamMembers(ctx context.Context, teamID string) ([]*models.TeamMember, error) {
	return nil, nil
}

func (f *fakeRBAC) UpsertTeamMember(ctx context.Context, member *models.TeamMember) error {
	return nil
}

func (f *fakeRBAC) RemoveTeamMember(ctx context.Context, teamID, email string) error {
	return storage.ErrMemberNotFound
}

func (f *fakeRBAC) HasPermission(ctx context.Context, teamID, email, resource, action string) (bool, error) {
	return f.granted, f.err
}

func TestSharedProvider_GetUserByID_DecoratesWithRBAC(t *testing.T) {
	ctx := context.Background()
	local, _, _ := setupLocalProvider(t)
	user := registerTestUser(t, local)

	rbac := &fakeRBAC{
		roles: []string{"admin"},
		perms: []string{"boards:write", "boards:delete"},
	}
	shared := NewSharedProvider(slog.Default(), local, rbac)

	got, err := shared.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.Roles)
	assert.Equal(t, []string{"boards:write", "boards:delete"}, got.Permissions)
}

func TestSharedProvider_HasPermission_FailsClosed(t *testing.T) {
	ctx := context.Background()
	local, _, _ := setupLocalProvider(t)

	rbac := &fakeRBAC{granted: true, err: errors.New("connection reset")}
	shared := NewSharedProvider(slog.Default(), local, rbac)

	ok, err := shared.HasPermission(ctx, "team-1", "alice@example.com", "boards", "delete")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSharedProvider_HasPermission(t *testing.T) {
	ctx := context.Background()
	local, _, _ := setupLocalProvider(t)

	granted := NewSharedProvider(slog.Default(), local, &fakeRBAC{granted: true})
	ok, err := granted.HasPermission(ctx, "team-1", "alice@example.com", "boards", "delete")
	require.NoError(t, err)
	assert.True(t, ok)

	denied := NewSharedProvider(slog.Default(), local, &fakeRBAC{granted: false})
	ok, err = denied.HasPermission(ctx, "team-1", "alice@example.com", "boards", "delete")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSharedProvider_AuthnDelegatesToLocal(t *testing.T) {
	ctx := context.Background()
	local, _, _ := setupLocalProvider(t)
	registerTestUser(t, local)

	shared := NewSharedProvider(slog.Default(), local, &fakeRBAC{})

	login, err := shared.Login(ctx, "alice", "Secret123!", "", "")
	require.NoError(t, err)

	claims, err := shared.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	require.NoError(t, shared.Logout(ctx, login.RefreshToken))
}
