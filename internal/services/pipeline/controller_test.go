package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/blobstore"
	"vision-gateway-go/internal/services/modules"
	"vision-gateway-go/pkg/logger"
)

var testOpts = Options{
	PipelineModuleID: "avaEdge",
	OnvifModuleID:    "onvifProxy",
	APIVersion:       "1.1",
	ScopeID:          "scope",
	ModuleID:         "gw",
	GatewayID:        "edge1",
	CallTimeout:      time.Second,
}

var camera = models.CameraInfo{
	DeviceID: "cam1",
	Address:  "10.0.0.7:80",
	Username: "admin",
	Password: "pw",
	ModelID:  models.ModelMotionDetection,
}

func newController(t *testing.T, inv modules.Invoker) *Controller {
	t.Helper()
	desc, err := LoadDescriptor(context.Background(), nil, camera)
	require.NoError(t, err)
	c := NewController(testOpts, inv, camera, desc, logger.Nop())
	c.SetClock(func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) })
	return c
}

func ok() *modules.Response { return &modules.Response{Status: 200} }

func streamReply() *modules.Response {
	return &modules.Response{Status: 200, Payload: []byte(`"rtsp://10.0.0.7/profile1"`)}
}

func TestStartRunsAllStepsInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	gomock.InOrder(
		inv.EXPECT().Invoke(gomock.Any(), "onvifProxy", MethodGetRTSPStreamURI, gomock.Any()).Return(streamReply(), nil),
		inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodTopologySet, gomock.Any()).Return(ok(), nil),
		inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineSet, gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _ string, req any) (*modules.Response, error) {
				doc := req.(map[string]any)
				assert.Equal(t, "cam1", doc["name"])
				assert.Equal(t, "1.1", doc["@apiVersion"])
				return ok(), nil
			}),
		inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineAct, gomock.Any()).Return(ok(), nil),
	)

	started := c.Start(context.Background(), StartParams{
		MediaProfileToken: "profile1",
		Parameters:        map[string]any{"motionSensitivity": "high", "notInTemplate": 1},
	})
	require.True(t, started)
	assert.True(t, c.Active())
	assert.Equal(t, "scope-gw-edge1-cam1-20240506-070809", c.AssetName())

	v, _ := c.desc.Parameter(ParamRTSPURL)
	assert.Equal(t, "rtsp://10.0.0.7/profile1", v)
	v, _ = c.desc.Parameter("motionSensitivity")
	assert.Equal(t, "high", v)
	_, found := c.desc.Parameter("notInTemplate")
	assert.False(t, found)
}

func TestStartShortCircuitsOnTopologyFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	inv.EXPECT().Invoke(gomock.Any(), "onvifProxy", MethodGetRTSPStreamURI, gomock.Any()).Return(streamReply(), nil)
	inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodTopologySet, gomock.Any()).Return(&modules.Response{Status: 400}, nil)
	inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineSet, gomock.Any()).Times(0)
	inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineAct, gomock.Any()).Times(0)

	assert.False(t, c.Start(context.Background(), StartParams{MediaProfileToken: "profile1"}))
	assert.False(t, c.Active())
}

func TestStartShortCircuitsOnStreamFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	inv.EXPECT().Invoke(gomock.Any(), "onvifProxy", MethodGetRTSPStreamURI, gomock.Any()).Return(nil, errors.New("unreachable"))

	assert.False(t, c.Start(context.Background(), StartParams{MediaProfileToken: "profile1"}))
}

func TestStartSkipsResolutionForRTSPCameras(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)

	rtsp := camera
	rtsp.Address = "rtsp://10.0.0.8/live"
	desc, err := LoadDescriptor(context.Background(), nil, rtsp)
	require.NoError(t, err)
	c := NewController(testOpts, inv, rtsp, desc, logger.Nop())

	inv.EXPECT().Invoke(gomock.Any(), "onvifProxy", gomock.Any(), gomock.Any()).Times(0)
	inv.EXPECT().Invoke(gomock.Any(), "avaEdge", gomock.Any(), gomock.Any()).Return(ok(), nil).Times(3)

	require.True(t, c.Start(context.Background(), StartParams{MediaProfileToken: "profile1"}))
	v, _ := c.desc.Parameter(ParamRTSPURL)
	assert.Equal(t, "rtsp://10.0.0.8/live", v)
}

func TestStartRefusedWhileActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	inv.EXPECT().Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(ok(), nil).Times(3)
	require.True(t, c.Start(context.Background(), StartParams{}))
	assert.False(t, c.Start(context.Background(), StartParams{}))
}

func TestAssetNameUniquePerStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)
	inv.EXPECT().Invoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(ok(), nil).AnyTimes()

	var names []string
	for i := 0; i < 3; i++ {
		require.True(t, c.Start(context.Background(), StartParams{}))
		names = append(names, c.AssetName())
		require.True(t, c.Stop(context.Background()))
	}
	assert.Equal(t, []string{
		"scope-gw-edge1-cam1-20240506-070809",
		"scope-gw-edge1-cam1-20240506-070809-1",
		"scope-gw-edge1-cam1-20240506-070809-2",
	}, names)
}

func TestDeleteAttemptsEveryStep(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	gomock.InOrder(
		inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineDeact, gomock.Any()).Return(nil, errors.New("connection reset")),
		inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineDelete, gomock.Any()).Return(&modules.Response{Status: 404}, nil),
		inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodTopologyDelete, gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _ string, req any) (*modules.Response, error) {
				assert.Equal(t, "MotionDetection-cam1", req.(map[string]any)["name"])
				return ok(), nil
			}),
	)

	assert.False(t, c.Delete(context.Background()))
	assert.False(t, c.Start(context.Background(), StartParams{}))
	assert.True(t, c.Delete(context.Background()))
}

func TestStopOnlyDeactivates(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	inv.EXPECT().Invoke(gomock.Any(), "avaEdge", MethodLivePipelineDeact, gomock.Any()).Return(ok(), nil)
	assert.True(t, c.Stop(context.Background()))
}

func TestCaptureSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := modules.NewMockInvoker(ctrl)
	c := newController(t, inv)

	jpeg := []byte{0xff, 0xd8, 0xff}
	payload := []byte(`"` + base64.StdEncoding.EncodeToString(jpeg) + `"`)
	inv.EXPECT().Invoke(gomock.Any(), "onvifProxy", MethodGetSnapshot, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, req any) (*modules.Response, error) {
			assert.Equal(t, "profile2", req.(map[string]any)["MediaProfileToken"])
			return &modules.Response{Status: 200, Payload: payload}, nil
		})

	img, err := c.CaptureSnapshot(context.Background(), "profile2")
	require.NoError(t, err)
	assert.Equal(t, jpeg, img)
}

func TestVideoLinkTrailingSlash(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	a := VideoLink("http://host/", "asset1", start, 30)
	b := VideoLink("http://host", "asset1", start, 30)
	assert.Equal(t, a, b)
	assert.Equal(t, "http://host/ampplayer?an=asset1&st=2024-01-02T02:04:05Z&du=30", a)
}

func TestLoadDescriptorPrefersBlobDocument(t *testing.T) {
	blobs := blobstore.MapLookup{
		"custom.json": {
			"pipelineTopology": map[string]any{"name": "Custom"},
			"livePipeline": map[string]any{
				"properties": map[string]any{"parameters": []any{map[string]any{"name": "rtspUrl"}}},
			},
		},
	}
	info := camera
	info.PipelineTopology = "custom.json"

	desc, err := LoadDescriptor(context.Background(), blobs, info)
	require.NoError(t, err)
	assert.Equal(t, "Custom-cam1", desc.TopologyName)
	assert.Equal(t, "cam1", desc.InstanceName)
	assert.Equal(t, "Custom-cam1", desc.InstanceDocument["properties"].(map[string]any)["topologyName"])

	// stored document is not mutated
	assert.Equal(t, "Custom", blobs["custom.json"]["pipelineTopology"].(map[string]any)["name"])
}

func TestLoadDescriptorUnknownModel(t *testing.T) {
	info := camera
	info.ModelID = "thermal"
	_, err := LoadDescriptor(context.Background(), blobstore.MapLookup{}, info)
	assert.ErrorIs(t, err, ErrNoTemplate)
}
