package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vision-gateway-go/internal/models"
)

func TestDeviceIDFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"/livePipelines/cam1/sources/rtspSource", "cam1", true},
		{"/livePipelines/cam-7", "cam-7", true},
		{"livePipelines/cam2/processors/motion", "cam2", true},
		{"/graphInstances/cam1/sources/rtspSource", "", false},
		{"/livePipelines/", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, ok := DeviceIDFromSubject(tt.subject)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func commandMessage(t *testing.T, command string, payload map[string]any) models.Message {
	t.Helper()
	data, err := json.Marshal(models.GatewayCommand{Command: command, Payload: payload})
	require.NoError(t, err)
	return models.Message{Data: data}
}

func TestRouteGatewayCommands(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	resp, err := f.registry.RouteInbound(ctx, InputCommand, commandMessage(t, models.GatewayCommandAddCamera, map[string]any{
		"deviceId": "cam1",
		"address":  "rtsp://10.0.0.9/live",
		"modelId":  models.ModelMotionDetection,
	}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, f.registry.Count())

	resp, err = f.registry.RouteInbound(ctx, InputCommand, commandMessage(t, models.GatewayCommandAddCamera, map[string]any{
		"deviceId": "cam2",
	}))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	f.shadows.Client("cam1").PushDelta(map[string]any{})
	resp, err = f.registry.RouteInbound(ctx, InputCommand, commandMessage(t, models.GatewayCommandSendTelemetry, map[string]any{
		"deviceId":  "cam1",
		"telemetry": map[string]any{"tlCustom": 3},
	}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, eventsWith(f.shadows.Client("cam1").Events(), "tlCustom"), 1)

	resp, err = f.registry.RouteInbound(ctx, InputCommand, commandMessage(t, models.GatewayCommandDeleteCamera, nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	f.allowPipelineCalls()
	resp, err = f.registry.RouteInbound(ctx, InputCommand, commandMessage(t, models.GatewayCommandDeleteCamera, map[string]any{"deviceId": "cam1"}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Zero(t, f.registry.Count())

	resp, err = f.registry.RouteInbound(ctx, InputCommand, commandMessage(t, "formatDisk", nil))
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, 404, resp.StatusCode)

	_, err = f.registry.RouteInbound(ctx, InputCommand, models.Message{Data: []byte("{not json")})
	assert.Error(t, err)
}

func TestRoutePipelineMessages(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	require.True(t, f.registry.CreateDevice(ctx, rtspCamera("cam1")).Success)
	client := f.shadows.Client("cam1")
	client.PushDelta(map[string]any{})

	body, err := json.Marshal(models.InferenceMessage{Inferences: []models.Inference{{Type: "motion"}, {Type: "motion"}}})
	require.NoError(t, err)
	_, err = f.registry.RouteInbound(ctx, InputPipelineTelemetry, models.Message{
		Data:       body,
		Properties: map[string]string{PropertySubject: "/livePipelines/cam1/processors/motionDetection"},
	})
	require.NoError(t, err)
	assert.Len(t, eventsWith(client.Events(), models.TelemetryInference), 2)
	assert.Equal(t, []any{int64(2)}, eventsWith(client.Events(), models.TelemetryInferenceCount))

	_, err = f.registry.RouteInbound(ctx, InputPipelineDiagnostics, models.Message{
		Data: []byte(`{"errorCode":"503"}`),
		Properties: map[string]string{
			PropertySubject:   "/livePipelines/cam1/sources/rtspSource",
			PropertyEventType: "Microsoft.VideoAnalyzer.Diagnostics.NetworkError",
			PropertyEventTime: "2024-06-01T10:00:00Z",
		},
	})
	require.NoError(t, err)
	session, _ := f.registry.Get("cam1")
	assert.Equal(t, int64(1), session.EventCounts()["evNetworkError"])

	// unknown devices are dropped without an error
	_, err = f.registry.RouteInbound(ctx, InputPipelineOperational, models.Message{
		Properties: map[string]string{PropertySubject: "/livePipelines/ghost/sinks/assetSink"},
	})
	assert.NoError(t, err)

	_, err = f.registry.RouteInbound(ctx, InputPipelineTelemetry, models.Message{Data: body})
	assert.ErrorIs(t, err, ErrNoDeviceID)

	_, err = f.registry.RouteInbound(ctx, "video", models.Message{})
	assert.ErrorIs(t, err, ErrUnknownInput)
}

func eventsWith(events []map[string]any, key string) []any {
	var out []any
	for _, e := range events {
		if v, ok := e[key]; ok {
			out = append(out, v)
		}
	}
	return out
}
