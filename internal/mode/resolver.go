package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsdeck/opsdeck/internal/obs"
	"github.com/opsdeck/opsdeck/internal/storage"
)

// Mode is the current operating mode of the application.
type Mode string

const (
	// ModeSolo runs against only the local embedded database.
	ModeSolo Mode = "solo"
	// ModeShared stores team data in the central relational database.
	// Authentication remains local in both modes.
	ModeShared Mode = "shared"
)

// Status is the diagnostic view of the mode decision.
type Status struct {
	Mode              Mode `json:"mode"`
	SharedEnabled     bool `json:"shared_enabled"`
	SharedDBConnected bool `json:"shared_db_connected"`
}

// sharedEnabledKey is the settings-store key for the persisted flag.
const sharedEnabledKey = "mode.shared_enabled"

// probeTimeout bounds the shared-backend connectivity probe so an
// unreachable backend degrades to solo promptly instead of hanging
// every request that checks mode.
const probeTimeout = 3 * time.Second

// probeCacheTTL is how long a probe result is reused before a fresh
// round trip.
const probeCacheTTL = 10 * time.Second

// Prober is the connectivity handshake against the shared backend.
type Prober interface {
	Ping(ctx context.Context) error
}

// Resolver answers "are we in solo or shared mode". Shared mode
// requires both the persisted flag and a live backend: "enabled but
// unreachable" reports solo, because users must always be able to
// authenticate locally even when the team backend is down.
type Resolver struct {
	logger   *slog.Logger
	settings storage.SettingsStorage
	prober   Prober // nil when no shared backend is configured

	mu        sync.Mutex
	lastProbe time.Time
	lastOK    bool
}

// NewResolver creates a mode resolver. prober may be nil when no shared
// backend is configured; the mode is then always solo.
func NewResolver(logger *slog.Logger, settings storage.SettingsStorage, prober Prober) *Resolver {
	return &Resolver{
		logger:   logger,
		settings: settings,
		prober:   prober,
	}
}

// Mode returns the current operating mode.
func (r *Resolver) Mode(ctx context.Context) Mode {
	return r.Status(ctx).Mode
}

// Status returns the mode plus the inputs that produced it.
func (r *Resolver) Status(ctx context.Context) Status {
	enabled, err := r.sharedEnabled(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to read shared-mode flag, assuming solo", slog.Any("error", err))
		return Status{Mode: ModeSolo}
	}
	if !enabled {
		return Status{Mode: ModeSolo, SharedEnabled: false}
	}

	connected := r.probe(ctx)
	if !connected {
		// Soft fallback: enabled but unreachable is solo, not an error
		return Status{Mode: ModeSolo, SharedEnabled: true, SharedDBConnected: false}
	}

	return Status{Mode: ModeShared, SharedEnabled: true, SharedDBConnected: true}
}

// SetSharedEnabled persists the flag. It does not migrate any data.
func (r *Resolver) SetSharedEnabled(ctx context.Context, enabled bool) error {
	raw, err := json.Marshal(enabled)
	if err != nil {
		return fmt.Errorf("failed to encode shared-mode flag: %w", err)
	}
	if err := r.settings.SetSetting(ctx, sharedEnabledKey, raw); err != nil {
		return fmt.Errorf("failed to persist shared-mode flag: %w", err)
	}

	// Drop the probe cache so the next Status reflects the change
	r.mu.Lock()
	r.lastProbe = time.Time{}
	r.mu.Unlock()

	return nil
}

func (r *Resolver) sharedEnabled(ctx context.Context) (bool, error) {
	raw, err := r.settings.GetSetting(ctx, sharedEnabledKey)
	if err != nil {
		if errors.Is(err, storage.ErrSettingNotFound) {
			return false, nil
		}
		return false, err
	}

	var enabled bool
	if err := json.Unmarshal(raw, &enabled); err != nil {
		return false, fmt.Errorf("failed to decode shared-mode flag: %w", err)
	}
	return enabled, nil
}

// probe reuses the last result within probeCacheTTL, otherwise performs
// a bounded handshake against the shared backend.
func (r *Resolver) probe(ctx context.Context) bool {
	if r.prober == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastProbe) < probeCacheTTL {
		return r.lastOK
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := r.prober.Ping(probeCtx)
	r.lastProbe = time.Now()
	r.lastOK = err == nil

	if err != nil {
		obs.ModeProbes.WithLabelValues("unreachable").Inc()
		r.logger.WarnContext(ctx, "shared backend unreachable, falling back to solo", slog.Any("error", err))
	} else {
		obs.ModeProbes.WithLabelValues("connected").Inc()
	}

	return r.lastOK
}
