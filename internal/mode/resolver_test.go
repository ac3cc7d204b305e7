package mode

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/storage"
)

type memSettings struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemSettings() *memSettings {
	return &memSettings{data: make(map[string][]byte)}
}

func (m *memSettings) GetSetting(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrSettingNotFound
	}
	return v, nil
}

func (m *memSettings) SetSetting(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memSettings) SetSettingIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		return existing, nil
	}
	m.data[key] = value
	return value, nil
}

func (m *memSettings) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// fakeProber scripts the connectivity handshake outcome.
type fakeProber struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakeProber) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakeProber) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestResolver_SoloByDefault(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(slog.Default(), newMemSettings(), &fakeProber{})

	status := r.Status(ctx)
	assert.Equal(t, ModeSolo, status.Mode)
	assert.False(t, status.SharedEnabled)
	assert.False(t, status.SharedDBConnected)
}

func TestResolver_SharedWhenEnabledAndReachable(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(slog.Default(), newMemSettings(), &fakeProber{})

	require.NoError(t, r.SetSharedEnabled(ctx, true))

	status := r.Status(ctx)
	assert.Equal(t, ModeShared, status.Mode)
	assert.True(t, status.SharedEnabled)
	assert.True(t, status.SharedDBConnected)
}

func TestResolver_SoftFallbackWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{err: errors.New("connection refused")}
	r := NewResolver(slog.Default(), newMemSettings(), prober)

	require.NoError(t, r.SetSharedEnabled(ctx, true))

	// Enabled but unreachable degrades to solo, not an error
	status := r.Status(ctx)
	assert.Equal(t, ModeSolo, status.Mode)
	assert.True(t, status.SharedEnabled)
	assert.False(t, status.SharedDBConnected)
}

func TestResolver_SoloWithoutProber(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(slog.Default(), newMemSettings(), nil)

	require.NoError(t, r.SetSharedEnabled(ctx, true))

	// No shared backend configured at all: always solo
	assert.Equal(t, ModeSolo, r.Mode(ctx))
}

func TestResolver_ProbeResultIsCached(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{}
	r := NewResolver(slog.Default(), newMemSettings(), prober)

	require.NoError(t, r.SetSharedEnabled(ctx, true))

	r.Status(ctx)
	r.Status(ctx)
	r.Status(ctx)

	prober.mu.Lock()
	calls := prober.calls
	prober.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestResolver_SetSharedEnabledResetsProbeCache(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{err: errors.New("down")}
	r := NewResolver(slog.Default(), newMemSettings(), prober)

	require.NoError(t, r.SetSharedEnabled(ctx, true))
	assert.Equal(t, ModeSolo, r.Mode(ctx))

	// The backend comes up; toggling the flag drops the cached probe
	prober.setErr(nil)
	require.NoError(t, r.SetSharedEnabled(ctx, true))
	assert.Equal(t, ModeShared, r.Mode(ctx))
}

func TestResolver_DisableReturnsToSolo(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(slog.Default(), newMemSettings(), &fakeProber{})

	require.NoError(t, r.SetSharedEnabled(ctx, true))
	require.Equal(t, ModeShared, r.Mode(ctx))

	require.NoError(t, r.SetSharedEnabled(ctx, false))
	assert.Equal(t, ModeSolo, r.Mode(ctx))
}
