package models

import "net/http"

// Commands handled by a camera device session.
const (
	CommandStartProcessing = "startProcessing"
	CommandStopProcessing  = "stopProcessing"
	CommandCaptureImage    = "captureImage"
	CommandRestartCamera   = "restartCamera"
)

// SessionCommands lists every command a session registers with its shadow connection.
var SessionCommands = []string{
	CommandStartProcessing,
	CommandStopProcessing,
	CommandCaptureImage,
	CommandRestartCamera,
}

// Gateway-level commands arriving on the command input.
const (
	GatewayCommandAddCamera     = "addCamera"
	GatewayCommandDeleteCamera  = "deleteCamera"
	GatewayCommandSendTelemetry = "sendTelemetry"
)

// Command parameter names.
const (
	ParamPipelineInstanceName = "pipelineInstanceName"
	ParamMediaProfileToken    = "mediaProfileToken"
)

// CommandRequest is an inbound direct-method invocation.
type CommandRequest struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StringParam returns a non-empty string parameter.
func (r CommandRequest) StringParam(name string) (string, bool) {
	v, ok := r.Payload[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// CommandResponse is returned for every command: 400 missing params, 500 failure, 200 success.
type CommandResponse struct {
	StatusCode int            `json:"statusCode"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
}

func CommandOK(message string, data map[string]any) CommandResponse {
	return CommandResponse{StatusCode: http.StatusOK, Message: message, Data: data}
}

func CommandBadRequest(message string) CommandResponse {
	return CommandResponse{StatusCode: http.StatusBadRequest, Message: message}
}

func CommandFailed(message string) CommandResponse {
	return CommandResponse{StatusCode: http.StatusInternalServerError, Message: message}
}

// GatewayCommand is the body of a message on the command input.
type GatewayCommand struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload,omitempty"`
}

// TelemetryRelay is the payload of a sendTelemetry gateway command.
type TelemetryRelay struct {
	DeviceID  string         `json:"deviceId"`
	Telemetry map[string]any `json:"telemetry"`
}
