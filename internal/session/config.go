package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// sessionConfigKey is the settings-store key for the persisted tunables.
const sessionConfigKey = "session.config"

// LoadConfig returns the persisted session config merged over the
// hard-coded defaults. Absent or partial settings fall back field by
// field, so a config written by an older build stays usable.
func LoadConfig(ctx context.Context, settings storage.SettingsStorage) (models.SessionConfig, error) {
	cfg := models.DefaultSessionConfig()

	raw, err := settings.GetSetting(ctx, sessionConfigKey)
	if err != nil {
		if errors.Is(err, storage.ErrSettingNotFound) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to load session config: %w", err)
	}

	// Pointer fields distinguish "absent" from zero so a partial
	// config written by an older build merges field by field.
	var stored struct {
		AccessTokenTTLMinutes    *int  `json:"access_token_ttl_minutes"`
		RefreshTokenTTLHours     *int  `json:"refresh_token_ttl_hours"`
		InactivityTimeoutMinutes *int  `json:"inactivity_timeout_minutes"`
		InactivityLockEnabled    *bool `json:"inactivity_lock_enabled"`
		MaxConcurrentSessions    *int  `json:"max_concurrent_sessions"`
		HeartbeatIntervalSeconds *int  `json:"heartbeat_interval_seconds"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return cfg, fmt.Errorf("failed to decode session config: %w", err)
	}

	if stored.AccessTokenTTLMinutes != nil && *stored.AccessTokenTTLMinutes > 0 {
		cfg.AccessTokenTTLMinutes = *stored.AccessTokenTTLMinutes
	}
	if stored.RefreshTokenTTLHours != nil && *stored.RefreshTokenTTLHours > 0 {
		cfg.RefreshTokenTTLHours = *stored.RefreshTokenTTLHours
	}
	if stored.InactivityTimeoutMinutes != nil && *stored.InactivityTimeoutMinutes > 0 {
		cfg.InactivityTimeoutMinutes = *stored.InactivityTimeoutMinutes
	}
	if stored.InactivityLockEnabled != nil {
		cfg.InactivityLockEnabled = *stored.InactivityLockEnabled
	}
	if stored.MaxConcurrentSessions != nil && *stored.MaxConcurrentSessions > 0 {
		cfg.MaxConcurrentSessions = *stored.MaxConcurrentSessions
	}
	if stored.HeartbeatIntervalSeconds != nil && *stored.HeartbeatIntervalSeconds > 0 {
		cfg.HeartbeatIntervalSeconds = *stored.HeartbeatIntervalSeconds
	}

	return cfg, nil
}

// SaveConfig persists the session config to the settings store.
func SaveConfig(ctx context.Context, settings storage.SettingsStorage, cfg models.SessionConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode session config: %w", err)
	}
	if err := settings.SetSetting(ctx, sessionConfigKey, raw); err != nil {
		return fmt.Errorf("failed to save session config: %w", err)
	}
	return nil
}
