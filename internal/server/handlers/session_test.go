package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/server/middleware"
	"github.com/opsdeck/opsdeck/pkg/api"
)

func authedRequest(t *testing.T, method, path string, body any, userID string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, "alice"))
}

func TestSessionHandler_Check(t *testing.T) {
	authH, _, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)
	registerAlice(t, authH)
	tokens := loginAlice(t, authH)

	rec := postJSON(t, h.Check, "/api/v1/auth/session", api.SessionCheckRequest{
		RefreshToken: tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SessionCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	assert.False(t, resp.ShouldRefresh)
	assert.False(t, resp.ExpiresAt.IsZero())
}

func TestSessionHandler_Check_UnknownToken(t *testing.T) {
	_, _, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)

	rec := postJSON(t, h.Check, "/api/v1/auth/session", api.SessionCheckRequest{
		RefreshToken: "never-issued",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SessionCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Valid)
}

func TestSessionHandler_Heartbeat(t *testing.T) {
	authH, local, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)
	registerAlice(t, authH)
	tokens := loginAlice(t, authH)
	userID := claimsUserID(t, local, tokens.AccessToken)

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/heartbeat", api.HeartbeatRequest{
		SessionID: tokens.SessionID,
	}, userID)
	rec := httptest.NewRecorder()
	h.Heartbeat(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A swept-away session is still a 204: heartbeats are fire and forget
	req = authedRequest(t, http.MethodPost, "/api/v1/auth/heartbeat", api.HeartbeatRequest{
		SessionID: "no-such-session",
	}, userID)
	rec = httptest.NewRecorder()
	h.Heartbeat(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionHandler_Heartbeat_NotOwnedSessionIgnored(t *testing.T) {
	authH, _, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)
	registerAlice(t, authH)
	tokens := loginAlice(t, authH)

	before, err := manager.GetByRefreshToken(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)

	// A different user heartbeating alice's session id gets the same
	// opaque 204 but moves nothing
	req := authedRequest(t, http.MethodPost, "/api/v1/auth/heartbeat", api.HeartbeatRequest{
		SessionID: tokens.SessionID,
	}, "someone-else")
	rec := httptest.NewRecorder()
	h.Heartbeat(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	after, err := manager.GetByRefreshToken(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, after.LastActivity.Equal(before.LastActivity))
}

func TestSessionHandler_List(t *testing.T) {
	authH, local, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)
	registerAlice(t, authH)
	tokens := loginAlice(t, authH)

	userID := claimsUserID(t, local, tokens.AccessToken)

	req := authedRequest(t, http.MethodGet, "/api/v1/auth/sessions", nil, userID)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SessionListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, tokens.SessionID, resp.Sessions[0].ID)
}

func TestSessionHandler_Revoke(t *testing.T) {
	authH, local, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)
	registerAlice(t, authH)
	tokens := loginAlice(t, authH)

	userID := claimsUserID(t, local, tokens.AccessToken)

	req := authedRequest(t, http.MethodDelete, "/api/v1/auth/sessions/"+tokens.SessionID, nil, userID)
	req.SetPathValue("id", tokens.SessionID)
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	check, err := manager.CheckSession(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.False(t, check.Valid)
}

func TestSessionHandler_Revoke_NotOwned(t *testing.T) {
	authH, _, manager := setupAuthStack(t)
	h := NewSessionHandler(slog.Default(), manager)
	registerAlice(t, authH)
	tokens := loginAlice(t, authH)

	// A different user cannot revoke alice's session
	req := authedRequest(t, http.MethodDelete, "/api/v1/auth/sessions/"+tokens.SessionID, nil, "someone-else")
	req.SetPathValue("id", tokens.SessionID)
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, api.CodeNotFound, errResp.Code)

	check, err := manager.CheckSession(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, check.Valid)
}
