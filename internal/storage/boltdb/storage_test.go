package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSecretStorage_PutGet(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	_, err := s.GetSecret(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrSecretNotFound)

	require.NoError(t, s.PutSecret(ctx, "signing_key", []byte("super-secret")))

	value, err := s.GetSecret(ctx, "signing_key")
	require.NoError(t, err)
	assert.Equal(t, []byte("super-secret"), value)

	// Overwrite replaces the value
	require.NoError(t, s.PutSecret(ctx, "signing_key", []byte("rotated")))

	value, err = s.GetSecret(ctx, "signing_key")
	require.NoError(t, err)
	assert.Equal(t, []byte("rotated"), value)
}

func TestSecretStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	require.NoError(t, s.PutSecret(ctx, "signing_key", []byte("super-secret")))
	require.NoError(t, s.DeleteSecret(ctx, "signing_key"))

	_, err := s.GetSecret(ctx, "signing_key")
	assert.ErrorIs(t, err, storage.ErrSecretNotFound)

	// Deleting an absent secret is a no-op
	require.NoError(t, s.DeleteSecret(ctx, "signing_key"))
}

func TestSecretStorage_ValueIsolatedFromTransaction(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	require.NoError(t, s.PutSecret(ctx, "key", []byte("original")))

	value, err := s.GetSecret(ctx, "key")
	require.NoError(t, err)

	// Mutating the returned slice must not corrupt the stored value
	value[0] = 'X'

	again, err := s.GetSecret(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestTeamBinding_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	_, err := s.GetTeamBinding(ctx)
	assert.ErrorIs(t, err, storage.ErrAppInfoNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	info := &models.AppInfo{
		ServerID:  uuid.New().String(),
		TeamID:    "team-1",
		TeamName:  "Platform",
		PublicKey: "cHVibGljLWtleQ==",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.SaveTeamBinding(ctx, info))

	retrieved, err := s.GetTeamBinding(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.ServerID, retrieved.ServerID)
	assert.Equal(t, info.TeamID, retrieved.TeamID)
	assert.Equal(t, info.PublicKey, retrieved.PublicKey)
}

func TestTeamBinding_Replace(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	first := &models.AppInfo{ServerID: "server-1", TeamID: "team-1"}
	require.NoError(t, s.SaveTeamBinding(ctx, first))

	// Re-binding to a different server replaces the stored identity
	second := &models.AppInfo{ServerID: "server-2", TeamID: "team-2"}
	require.NoError(t, s.SaveTeamBinding(ctx, second))

	retrieved, err := s.GetTeamBinding(ctx)
	require.NoError(t, err)
	assert.Equal(t, "server-2", retrieved.ServerID)
}

func TestTeamBinding_Clear(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	info := &models.AppInfo{ServerID: "server-1", TeamID: "team-1"}
	require.NoError(t, s.SaveTeamBinding(ctx, info))
	require.NoError(t, s.ClearTeamBinding(ctx))

	_, err := s.GetTeamBinding(ctx)
	assert.ErrorIs(t, err, storage.ErrAppInfoNotFound)

	// Clearing an absent binding is a no-op
	require.NoError(t, s.ClearTeamBinding(ctx))
}
