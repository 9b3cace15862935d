package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/shadow"
	"vision-gateway-go/pkg/logger"
)

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) Exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
}

func (e *exitRecorder) Codes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func newMonitor(t *testing.T, f *registryFixture, threshold int) (*HealthMonitor, *shadow.MemoryClient, *exitRecorder) {
	t.Helper()
	sink := shadow.NewMemoryClient("edge1")
	require.NoError(t, sink.Open(context.Background()))
	exit := &exitRecorder{}
	m := NewHealthMonitor(f.registry, sink, f.metrics, HealthOptions{
		Interval:     time.Hour,
		Threshold:    threshold,
		SampleMemory: func(context.Context) (uint64, error) { return 512 << 20, nil },
		Exit:         exit.Exit,
	}, logger.Nop())
	return m, sink, exit
}

func TestHealthyCheckEmitsFleetTelemetry(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam2")).Success)
	m, sink, exit := newMonitor(t, f, 2)

	assert.Equal(t, models.HealthGood, m.Check(ctx))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(512<<20), events[0][models.TelemetryFreeMemory])
	assert.Equal(t, 2, events[0][models.TelemetryConnectedCameras])

	c := m.Counters()
	assert.Zero(t, c.FailureStreak)
	assert.Equal(t, 2, c.Devices)
	assert.Empty(t, exit.Codes())
}

func TestCriticalStreakRestartsGateway(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)
	m, sink, exit := newMonitor(t, f, 3)

	f.shadows.Client("cam1").FireError(errors.New("credentials revoked"))

	assert.Equal(t, models.HealthCritical, m.Check(ctx))
	assert.Equal(t, models.HealthCritical, m.Check(ctx))
	assert.Equal(t, 2, m.Counters().FailureStreak)
	assert.Empty(t, exit.Codes())

	m.Check(ctx)
	assert.Equal(t, []int{1}, exit.Codes())
	assert.Equal(t, []any{"health check failed"}, eventsWith(sink.Events(), models.EventGatewayRestart))

	// a restart is only triggered once
	m.Check(ctx)
	assert.Equal(t, []int{1}, exit.Codes())
}

func TestHealthyCheckResetsStreak(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)
	m, _, exit := newMonitor(t, f, 2)

	f.shadows.Client("cam1").FireError(errors.New("transient"))
	m.Check(ctx)
	assert.Equal(t, 1, m.Counters().FailureStreak)

	// the device is gone, so the fleet is healthy again
	f.allowPipelineCalls()
	require.True(t, f.registry.Deprovision(ctx, "cam1"))
	m.Check(ctx)
	assert.Zero(t, m.Counters().FailureStreak)
	assert.Empty(t, exit.Codes())
}

func TestRestartWaitsForDelayOrContext(t *testing.T) {
	f := newRegistryFixture(t)
	exit := &exitRecorder{}
	m := NewHealthMonitor(f.registry, nil, nil, HealthOptions{
		RestartDelay: time.Hour,
		Exit:         exit.Exit,
	}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m.Restart(ctx, "operator request")
	assert.Equal(t, []int{1}, exit.Codes())
}
