package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/models"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// In-memory database per test
	storage, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = storage.Close()
	}

	return storage, cleanup
}

func createTestUser(t *testing.T, ctx context.Context, s *Storage) *models.User {
	t.Helper()

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     "user_" + uuid.New().String()[:8],
		Email:        uuid.New().String()[:8] + "@example.com",
		PasswordHash: "$2a$12$fakehash",
		DisplayName:  "Test User",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateUser(ctx, user))
	return user
}

func createTestSession(t *testing.T, ctx context.Context, s *Storage, userID string) *models.Session {
	t.Helper()

	now := time.Now().UTC()
	session := &models.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		AccessTokenHash:  "access_" + uuid.New().String(),
		RefreshTokenHash: "refresh_" + uuid.New().String(),
		ExpiresAt:        now.Add(7 * 24 * time.Hour),
		LastActivity:     now,
		CreatedAt:        now,
		IPAddress:        "127.0.0.1",
		UserAgent:        "test-agent",
	}
	require.NoError(t, s.CreateSession(ctx, session))
	return session
}
