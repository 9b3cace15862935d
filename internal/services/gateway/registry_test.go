package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"vision-gateway-go/internal/metrics"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/camera"
	"vision-gateway-go/internal/services/modules"
	"vision-gateway-go/internal/services/pipeline"
	"vision-gateway-go/internal/services/provisioning"
	"vision-gateway-go/internal/services/shadow"
	"vision-gateway-go/pkg/logger"
)

type fakeProvisioner struct {
	mu          sync.Mutex
	registerErr error
	deleteErr   error
	registered  []string
	deleted     []string
}

func (p *fakeProvisioner) Register(_ context.Context, deviceID, key string, _ map[string]any) (*provisioning.ConnectionDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registerErr != nil {
		return nil, p.registerErr
	}
	p.registered = append(p.registered, deviceID)
	return &provisioning.ConnectionDescriptor{DeviceID: deviceID, AssignedHub: "hub-1", Status: "assigned"}, nil
}

func (p *fakeProvisioner) DeleteIdentity(_ context.Context, deviceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, deviceID)
	return p.deleteErr
}

func (p *fakeProvisioner) Deleted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

type registryFixture struct {
	registry    *Registry
	invoker     *modules.MockInvoker
	shadows     *shadow.MemoryFactory
	provisioner *fakeProvisioner
	metrics     *metrics.Registry
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		invoker:     modules.NewMockInvoker(gomock.NewController(t)),
		shadows:     shadow.NewMemoryFactory(),
		provisioner: &fakeProvisioner{},
		metrics:     metrics.New(),
	}
	f.registry = NewRegistry(Deps{
		Provisioner: f.provisioner,
		Invoker:     f.invoker,
		Factory:     f.shadows.Factory(),
		Metrics:     f.metrics,
		Logger:      logger.Nop(),
		GroupKey:    "Z3JvdXAta2V5",
		Pipeline: pipeline.Options{
			PipelineModuleID: "avaEdge",
			OnvifModuleID:    "onvifProxy",
			APIVersion:       "1.1",
			ScopeID:          "scope",
			ModuleID:         "gw",
			GatewayID:        "edge1",
			CallTimeout:      time.Second,
		},
		Session: camera.Options{TickInterval: 10 * time.Millisecond, CallTimeout: time.Second},
	})
	return f
}

func rtspCamera(id string) models.CameraInfo {
	return models.CameraInfo{
		DeviceID: id,
		Name:     "Dock " + id,
		Address:  "rtsp://10.0.0.9:554/live",
		Username: "admin",
		Password: "secret",
		ModelID:  models.ModelMotionDetection,
	}
}

func (f *registryFixture) expect(method string, resp *modules.Response, err error) *gomock.Call {
	return f.invoker.EXPECT().Invoke(gomock.Any(), "avaEdge", method, gomock.Any()).Return(resp, err)
}

// allowPipelineCalls accepts any remote module call with a 200 reply.
func (f *registryFixture) allowPipelineCalls() {
	f.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&modules.Response{Status: 200}, nil).AnyTimes()
}

func TestDeviceLifecycleSurvivesFailedDeactivate(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	ok := &modules.Response{Status: 200}

	res := f.registry.CreateDevice(ctx, rtspCamera("cam1"))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"cam1"}, f.provisioner.registered)

	session, found := f.registry.Get("cam1")
	require.True(t, found)
	assert.Equal(t, models.StateAwaitingInitialSync, session.State())

	f.shadows.Client("cam1").PushDelta(map[string]any{})
	assert.Equal(t, models.StateReady, session.State())

	gomock.InOrder(
		f.expect(pipeline.MethodTopologySet, ok, nil),
		f.expect(pipeline.MethodLivePipelineSet, ok, nil),
		f.expect(pipeline.MethodLivePipelineAct, ok, nil),
	)
	require.True(t, session.StartProcessing(ctx, camera.StartParams{}))
	assert.Equal(t, models.StatePipelineActive, session.State())

	f.expect(pipeline.MethodLivePipelineDeact, ok, nil)
	require.True(t, session.StopProcessing(ctx))
	assert.Equal(t, models.StatePipelineInactive, session.State())

	gomock.InOrder(
		f.expect(pipeline.MethodLivePipelineDeact, nil, errors.New("module unreachable")),
		f.expect(pipeline.MethodLivePipelineDelete, ok, nil),
		f.expect(pipeline.MethodTopologyDelete, ok, nil),
	)
	assert.True(t, f.registry.Deprovision(ctx, "cam1"))

	_, found = f.registry.Get("cam1")
	assert.False(t, found)
	assert.Zero(t, f.registry.Count())
	assert.Equal(t, []string{"cam1"}, f.provisioner.Deleted())
}

func TestCreateDeviceRejectsDuplicates(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)

	res := f.registry.CreateDevice(ctx, rtspCamera("cam1"))
	assert.False(t, res.Success)
	assert.Equal(t, FailureAlreadyExists, res.Reason)
	assert.Equal(t, 1, f.registry.Count())
}

func TestCreateDeviceFailuresLeaveNoRegistration(t *testing.T) {
	tests := []struct {
		name       string
		info       models.CameraInfo
		setup      func(*registryFixture)
		reason     FailureReason
		rolledBack []string
	}{
		{
			name:   "missing address",
			info:   models.CameraInfo{DeviceID: "cam1", ModelID: models.ModelMotionDetection},
			reason: FailureInvalidCamera,
		},
		{
			name:   "provisioning rejected",
			info:   rtspCamera("cam1"),
			setup:  func(f *registryFixture) { f.provisioner.registerErr = &provisioning.Error{DeviceID: "cam1", StatusCode: 401} },
			reason: FailureProvisioning,
		},
		{
			name:       "no template for model",
			info:       models.CameraInfo{DeviceID: "cam1", Address: "rtsp://x/y", ModelID: "thermal"},
			reason:     FailureDescriptor,
			rolledBack: []string{"cam1"},
		},
		{
			name:       "shadow open fails",
			info:       rtspCamera("cam1"),
			setup:      func(f *registryFixture) { f.shadows.OpenErr = errors.New("refused") },
			reason:     FailureConnection,
			rolledBack: []string{"cam1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegistryFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			res := f.registry.CreateDevice(context.Background(), tt.info)
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
			assert.NotEmpty(t, res.Message)
			assert.Zero(t, f.registry.Count())

			// the id is free again afterwards
			assert.Empty(t, f.registry.pending)
			// an identity registered before the failure is removed again
			assert.Equal(t, tt.rolledBack, f.provisioner.Deleted())
		})
	}
}

func TestCreateDeviceRefusedWhileDeprovisioning(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	f.invoker.EXPECT().Invoke(gomock.Any(), "avaEdge", pipeline.MethodLivePipelineDeact, gomock.Any()).
		DoAndReturn(func(context.Context, string, string, any) (*modules.Response, error) {
			close(entered)
			<-unblock
			return &modules.Response{Status: 200}, nil
		})
	f.allowPipelineCalls()

	done := make(chan bool, 1)
	go func() { done <- f.registry.Deprovision(ctx, "cam1") }()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("deprovision never reached the pipeline module")
	}

	old, found := f.registry.Get("cam1")
	require.True(t, found)
	assert.Equal(t, models.StateDeleting, old.State())

	res := f.registry.CreateDevice(ctx, rtspCamera("cam1"))
	assert.False(t, res.Success)
	assert.Equal(t, FailureAlreadyExists, res.Reason)
	assert.False(t, f.registry.Deprovision(ctx, "cam1"))

	close(unblock)
	require.True(t, <-done)
	assert.Equal(t, []string{"cam1"}, f.provisioner.Deleted())

	// the id is free once teardown has finished
	res = f.registry.CreateDevice(ctx, rtspCamera("cam1"))
	require.True(t, res.Success, res.Message)
	fresh, found := f.registry.Get("cam1")
	require.True(t, found)
	assert.NotSame(t, old, fresh)
	assert.Equal(t, models.StateAwaitingInitialSync, fresh.State())
	assert.Equal(t, []string{"cam1"}, f.provisioner.Deleted())
}

func TestDeprovisionUnknownDevice(t *testing.T) {
	f := newRegistryFixture(t)
	assert.False(t, f.registry.Deprovision(context.Background(), "ghost"))
	assert.Empty(t, f.provisioner.Deleted())
}

func TestDeprovisionIgnoresIdentityFailure(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)
	f.provisioner.deleteErr = errors.New("identity service down")
	f.allowPipelineCalls()

	assert.True(t, f.registry.Deprovision(ctx, "cam1"))
	assert.Zero(t, f.registry.Count())
}

func TestListAndHealth(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	for _, id := range []string{"cam2", "cam1", "cam3"} {
		require.True(t, f.registry.CreateDevice(ctx, rtspCamera(id)).Success)
	}

	var ids []string
	for _, s := range f.registry.List() {
		ids = append(ids, s.DeviceID())
	}
	assert.Equal(t, []string{"cam1", "cam2", "cam3"}, ids)

	f.shadows.Client("cam2").FireDisconnect(errors.New("flap"))
	level, levels := f.registry.CheckHealth(ctx)
	assert.Equal(t, models.HealthWarning, level)
	assert.Equal(t, models.HealthWarning, levels["cam2"])
	assert.Equal(t, models.HealthGood, levels["cam1"])

	f.shadows.Client("cam3").FireError(errors.New("auth"))
	level, _ = f.registry.CheckHealth(ctx)
	assert.Equal(t, models.HealthCritical, level)
}

func TestShutdownClosesSessions(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam2")).Success)

	require.NoError(t, f.registry.Shutdown(ctx))
	assert.False(t, f.shadows.Client("cam1").IsOpen())
	assert.False(t, f.shadows.Client("cam2").IsOpen())
}
