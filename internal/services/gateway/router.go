package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vision-gateway-go/internal/models"
)

// Collaborator inputs the gateway receives messages on.
const (
	InputCommand             = "command"
	InputPipelineTelemetry   = "pipelineTelemetry"
	InputPipelineOperational = "pipelineOperational"
	InputPipelineDiagnostics = "pipelineDiagnostics"
)

// Inputs lists every input RouteInbound understands.
var Inputs = []string{InputCommand, InputPipelineTelemetry, InputPipelineOperational, InputPipelineDiagnostics}

// Message property names set by the pipeline module.
const (
	PropertySubject   = "subject"
	PropertyEventType = "eventType"
	PropertyEventTime = "eventTime"
)

var (
	ErrUnknownInput   = errors.New("unknown input")
	ErrUnknownCommand = errors.New("unknown gateway command")
	ErrNoDeviceID     = errors.New("message subject carries no device id")
)

// DeviceIDFromSubject extracts the device id from a pipeline subject such as
// /livePipelines/<deviceId>/sources/rtspSource.
func DeviceIDFromSubject(subject string) (string, bool) {
	parts := strings.Split(strings.Trim(subject, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "livePipelines" && parts[i+1] != "" {
			return parts[i+1], true
		}
	}
	return "", false
}

// RouteInbound dispatches a message from a collaborator input. Gateway commands
// return a CommandResponse; pipeline messages for unknown devices are logged and dropped.
func (r *Registry) RouteInbound(ctx context.Context, input string, msg models.Message) (models.CommandResponse, error) {
	switch input {
	case InputCommand:
		return r.routeCommand(ctx, msg)
	case InputPipelineTelemetry, InputPipelineOperational, InputPipelineDiagnostics:
		return models.CommandResponse{}, r.routePipeline(ctx, input, msg)
	default:
		return models.CommandResponse{}, fmt.Errorf("%w %q", ErrUnknownInput, input)
	}
}

func (r *Registry) routeCommand(ctx context.Context, msg models.Message) (models.CommandResponse, error) {
	var cmd models.GatewayCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		return models.CommandBadRequest("malformed command message"), fmt.Errorf("decode gateway command: %w", err)
	}
	r.logger.Info().Str("command", cmd.Command).Msg("Gateway command received")

	switch cmd.Command {
	case models.GatewayCommandAddCamera:
		var info models.CameraInfo
		if err := remarshal(cmd.Payload, &info); err != nil {
			return models.CommandBadRequest("malformed camera payload"), err
		}
		res := r.CreateDevice(ctx, info)
		if !res.Success {
			if res.Reason == FailureInvalidCamera {
				return models.CommandBadRequest(res.Message), nil
			}
			return models.CommandFailed(res.Message), nil
		}
		return models.CommandOK(res.Message, map[string]any{"deviceId": res.DeviceID}), nil

	case models.GatewayCommandDeleteCamera:
		id, _ := cmd.Payload["deviceId"].(string)
		if id == "" {
			return models.CommandBadRequest("missing parameter deviceId"), nil
		}
		if !r.Deprovision(ctx, id) {
			return models.CommandFailed("device " + id + " not found"), nil
		}
		return models.CommandOK("device deleted", map[string]any{"deviceId": id}), nil

	case models.GatewayCommandSendTelemetry:
		var relay models.TelemetryRelay
		if err := remarshal(cmd.Payload, &relay); err != nil {
			return models.CommandBadRequest("malformed telemetry payload"), err
		}
		if relay.DeviceID == "" || len(relay.Telemetry) == 0 {
			return models.CommandBadRequest("deviceId and telemetry are required"), nil
		}
		if err := r.SendTelemetry(ctx, relay.DeviceID, relay.Telemetry); err != nil {
			return models.CommandFailed(err.Error()), nil
		}
		return models.CommandOK("telemetry sent", nil), nil

	default:
		return models.CommandResponse{StatusCode: 404, Message: "unknown command " + cmd.Command},
			fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Command)
	}
}

func (r *Registry) routePipeline(ctx context.Context, input string, msg models.Message) error {
	subject := msg.Properties[PropertySubject]
	id, ok := DeviceIDFromSubject(subject)
	if !ok {
		r.logger.Warn().Str("input", input).Str("subject", subject).Msg("Pipeline message without device id")
		return ErrNoDeviceID
	}
	session, ok := r.Get(id)
	if !ok {
		r.logger.Warn().Str("input", input).Str("device_id", id).Msg("Pipeline message for unknown device")
		return nil
	}

	if input == InputPipelineTelemetry {
		var body models.InferenceMessage
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			return fmt.Errorf("decode inference message for %s: %w", id, err)
		}
		session.ProcessInference(ctx, body)
		return nil
	}

	ev := models.PipelineEvent{
		EventType: msg.Properties[PropertyEventType],
		Subject:   subject,
	}
	if t, err := time.Parse(time.RFC3339, msg.Properties[PropertyEventTime]); err == nil {
		ev.EventTime = t
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &ev.Data); err != nil {
			r.logger.Debug().Err(err).Str("device_id", id).Msg("Pipeline event body is not a JSON object")
		}
	}
	session.ProcessPipelineEvent(ctx, ev)
	return nil
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
