package location

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"paraderos-agent/internal/models"
	"paraderos-agent/internal/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskName = "location-test-task"

type countingPrompter struct {
	fg, bg   PermissionStatus
	fgN, bgN atomic.Int32
}

func (p *countingPrompter) PromptForeground(ctx context.Context) (PermissionStatus, error) {
	p.fgN.Add(1)
	return p.fg, nil
}

func (p *countingPrompter) PromptBackground(ctx context.Context) (PermissionStatus, error) {
	p.bgN.Add(1)
	return p.bg, nil
}

func granted(t *testing.T) *Permissions {
	t.Helper()
	p := NewPermissions(StaticPrompter{Foreground: PermissionGranted, Background: PermissionGranted})
	_, err := p.RequestForeground(context.Background())
	require.NoError(t, err)
	_, err = p.RequestBackground(context.Background())
	require.NoError(t, err)
	return p
}

func fastConfig() UpdatesConfig {
	cfg := DefaultUpdatesConfig()
	cfg.MinInterval = 10 * time.Millisecond
	cfg.DeferredBatchWindow = 0
	cfg.MinDistanceMeters = 0
	return cfg
}

func TestBatchLatest(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	b := Batch{Samples: []models.PositionSample{
		{Latitude: 1, CapturedAt: base},
		{Latitude: 3, CapturedAt: base.Add(2 * time.Second)},
		{Latitude: 2, CapturedAt: base.Add(time.Second)},
	}}

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 3.0, latest.Latitude)

	_, ok = Batch{}.Latest()
	assert.False(t, ok)
}

func TestDeltaFilter(t *testing.T) {
	f := NewDeltaFilter(15)
	origin := models.PositionSample{Latitude: -33.6117, Longitude: -70.5757}

	assert.True(t, f.Accept(origin), "first sample is always accepted")

	// ~5.5m north
	near := models.PositionSample{Latitude: -33.61165, Longitude: -70.5757}
	assert.False(t, f.Accept(near))

	// ~111m north
	far := models.PositionSample{Latitude: -33.6107, Longitude: -70.5757}
	assert.True(t, f.Accept(far))

	poor := 250.0
	assert.False(t, f.Accept(models.PositionSample{Latitude: 0, Longitude: 0, Accuracy: &poor}))

	stats := f.Stats()
	assert.Equal(t, int64(2), stats.Accepted)
	assert.Equal(t, int64(1), stats.SkippedByDelta)
	assert.Equal(t, int64(1), stats.SkippedByAccuracy)

	f.Reset()
	assert.True(t, f.Accept(near))
}

func TestHaversineDistance(t *testing.T) {
	// One degree of latitude is roughly 111km
	d := haversineDistance(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)
	assert.Zero(t, haversineDistance(10, 10, 10, 10))
}

func TestPermissionsPromptOnlyUntilGranted(t *testing.T) {
	prompter := &countingPrompter{fg: PermissionGranted, bg: PermissionDenied}
	p := NewPermissions(prompter)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := p.RequestForeground(ctx)
		require.NoError(t, err)
		assert.Equal(t, PermissionGranted, status)

		status, err = p.RequestBackground(ctx)
		require.NoError(t, err)
		assert.Equal(t, PermissionDenied, status)
	}

	assert.Equal(t, int32(1), prompter.fgN.Load())
	assert.Equal(t, int32(3), prompter.bgN.Load(), "denials are asked again")
	assert.False(t, p.Granted())
}

func TestPermissionsResolveReadsPlatformState(t *testing.T) {
	ctx := context.Background()

	p := NewPermissions(StaticPrompter{Foreground: PermissionGranted, Background: PermissionGranted})
	assert.False(t, p.Granted(), "nothing asked yet")
	assert.True(t, p.Resolve(ctx))
	assert.True(t, p.Granted())

	p = NewPermissions(StaticPrompter{Foreground: PermissionGranted, Background: PermissionDenied})
	assert.False(t, p.Resolve(ctx))

	p = NewPermissions(StaticPrompter{Foreground: PermissionGranted, Background: PermissionGranted})
	p.Revoke()
	assert.False(t, p.Resolve(ctx), "a withdrawn grant stays withdrawn")
}

func TestPermissionsResolveNeverPrompts(t *testing.T) {
	prompter := &countingPrompter{fg: PermissionGranted, bg: PermissionGranted}
	p := NewPermissions(prompter)

	assert.False(t, p.Resolve(context.Background()))
	assert.Zero(t, prompter.fgN.Load())
	assert.Zero(t, prompter.bgN.Load())
}

func TestFixFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fix.json")
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	p := FixFileProvider{Path: path, MaxAge: time.Minute, Now: func() time.Time { return now }}
	ctx := context.Background()

	_, err := p.Fix(ctx, AccuracyHigh)
	assert.ErrorIs(t, err, ErrNoFix)

	require.NoError(t, os.WriteFile(path, []byte(`{"latitude":-33.5,"longitude":-70.6,"captured_at":"2025-05-01T09:59:30Z"}`), 0o600))
	sample, err := p.Fix(ctx, AccuracyHigh)
	require.NoError(t, err)
	assert.Equal(t, -33.5, sample.Latitude)
	assert.Equal(t, -70.6, sample.Longitude)

	require.NoError(t, os.WriteFile(path, []byte(`{"latitude":-33.5,"longitude":-70.6,"captured_at":"2025-05-01T09:00:00Z"}`), 0o600))
	_, err = p.Fix(ctx, AccuracyHigh)
	assert.ErrorIs(t, err, ErrNoFix, "stale fix")

	require.NoError(t, os.WriteFile(path, []byte(`garbage`), 0o600))
	_, err = p.Fix(ctx, AccuracyHigh)
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestManagerStartRequiresPermission(t *testing.T) {
	registry := tasks.NewRegistry(time.Second)
	defer registry.Close()
	registry.Define(taskName, func(ctx context.Context, inv tasks.Invocation) tasks.Result { return tasks.ResultSuccess })

	m := NewManager(taskName, registry, StaticProvider{}, NewPermissions(StaticPrompter{Foreground: PermissionDenied}))
	defer m.Close()

	err := m.StartContinuousUpdates(context.Background(), fastConfig())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, m.IsRunning())
}

func TestManagerStartAfterRestartUsesPlatformGrants(t *testing.T) {
	registry := tasks.NewRegistry(time.Second)
	defer registry.Close()
	registry.Define(taskName, func(ctx context.Context, inv tasks.Invocation) tasks.Result { return tasks.ResultSuccess })

	// fresh permissions, never prompted in this process
	m := NewManager(taskName, registry, StaticProvider{}, NewPermissions(StaticPrompter{Foreground: PermissionGranted, Background: PermissionGranted}))
	defer m.Close()

	require.NoError(t, m.StartContinuousUpdates(context.Background(), fastConfig()))
	assert.True(t, m.IsRunning())
}

func TestManagerStartRequiresDefinedTask(t *testing.T) {
	registry := tasks.NewRegistry(time.Second)
	defer registry.Close()

	m := NewManager(taskName, registry, StaticProvider{}, granted(t))
	defer m.Close()

	err := m.StartContinuousUpdates(context.Background(), fastConfig())
	assert.ErrorIs(t, err, tasks.ErrNotDefined)
}

func TestManagerDeliversBatches(t *testing.T) {
	registry := tasks.NewRegistry(time.Second)
	defer registry.Close()

	batches := make(chan Batch, 16)
	registry.Define(taskName, func(ctx context.Context, inv tasks.Invocation) tasks.Result {
		if b, ok := inv.Data.(Batch); ok {
			select {
			case batches <- b:
			default:
			}
		}
		return tasks.ResultSuccess
	})

	m := NewManager(taskName, registry, StaticProvider{Latitude: -33.6117, Longitude: -70.5757}, granted(t))
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.StartContinuousUpdates(ctx, fastConfig()))
	require.NoError(t, m.StartContinuousUpdates(ctx, fastConfig()), "second start is a no-op")
	assert.True(t, m.IsRunning())

	select {
	case b := <-batches:
		require.NotEmpty(t, b.Samples)
		assert.Equal(t, -33.6117, b.Samples[0].Latitude)
	case <-time.After(time.Second):
		t.Fatal("no batch delivered")
	}

	require.NoError(t, m.StopContinuousUpdates(ctx))
	assert.False(t, m.IsRunning())
	require.NoError(t, m.StopContinuousUpdates(ctx), "second stop is a no-op")
}

type failingProvider struct{ err error }

func (p failingProvider) Fix(ctx context.Context, accuracy Accuracy) (models.PositionSample, error) {
	return models.PositionSample{}, p.err
}

func TestManagerDeliversProviderErrors(t *testing.T) {
	registry := tasks.NewRegistry(time.Second)
	defer registry.Close()

	errs := make(chan error, 16)
	registry.Define(taskName, func(ctx context.Context, inv tasks.Invocation) tasks.Result {
		if inv.Err != nil {
			select {
			case errs <- inv.Err:
			default:
			}
		}
		return tasks.ResultNoData
	})

	m := NewManager(taskName, registry, failingProvider{err: ErrNoFix}, granted(t))
	defer m.Close()

	require.NoError(t, m.StartContinuousUpdates(context.Background(), fastConfig()))

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrNoFix))
	case <-time.After(time.Second):
		t.Fatal("no error invocation delivered")
	}
}

func TestManagerCurrentPosition(t *testing.T) {
	registry := tasks.NewRegistry(time.Second)
	defer registry.Close()
	ctx := context.Background()

	m := NewManager(taskName, registry, StaticProvider{Latitude: 1, Longitude: 2}, granted(t))
	sample, err := m.CurrentPosition(ctx, AccuracyBalanced)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sample.Latitude)
	assert.False(t, sample.CapturedAt.IsZero())

	denied := NewManager(taskName, registry, StaticProvider{}, NewPermissions(StaticPrompter{Foreground: PermissionDenied}))
	_, err = denied.CurrentPosition(ctx, AccuracyBalanced)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
