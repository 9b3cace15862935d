package camera

import (
	"context"
	"fmt"
	"strconv"

	"vision-gateway-go/internal/helpers"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/shadow"
)

func (s *Session) commandHandlers() map[string]shadow.CommandHandler {
	return map[string]shadow.CommandHandler{
		models.CommandStartProcessing: s.handleStartProcessing,
		models.CommandStopProcessing:  s.handleStopProcessing,
		models.CommandCaptureImage:    s.handleCaptureImage,
		models.CommandRestartCamera:   s.handleRestartCamera,
	}
}

// guardCommand recovers handler panics into Critical health and a 500 response.
func (s *Session) guardCommand(name string, h shadow.CommandHandler) shadow.CommandHandler {
	return func(ctx context.Context, req models.CommandRequest) (resp models.CommandResponse) {
		defer func() {
			if r := recover(); r != nil {
				s.health.Store(int32(models.HealthCritical))
				s.logger.Error().Interface("panic", r).Str("command", name).Msg("Recovered from panic in command handler")
				resp = models.CommandFailed(fmt.Sprintf("%s failed: internal error", name))
			}
			if s.metrics != nil {
				s.metrics.Commands.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()
			}
		}()

		s.logger.Info().Str("command", name).Msg("Command received")
		return h(ctx, req)
	}
}

// Invoke runs a registered command directly, as if it had arrived over the shadow connection.
func (s *Session) Invoke(ctx context.Context, req models.CommandRequest) models.CommandResponse {
	h, ok := s.commandHandlers()[req.Name]
	if !ok {
		return models.CommandResponse{StatusCode: 404, Message: "unknown command " + req.Name}
	}
	return s.guardCommand(req.Name, h)(ctx, req)
}

func (s *Session) handleStartProcessing(ctx context.Context, req models.CommandRequest) models.CommandResponse {
	instance, ok := req.StringParam(models.ParamPipelineInstanceName)
	if !ok {
		return models.CommandBadRequest("missing parameter " + models.ParamPipelineInstanceName)
	}
	token, ok := req.StringParam(models.ParamMediaProfileToken)
	if !ok {
		return models.CommandBadRequest("missing parameter " + models.ParamMediaProfileToken)
	}

	if !s.StartProcessing(ctx, StartParams{PipelineInstanceName: instance, MediaProfileToken: token}) {
		return models.CommandFailed("failed to start pipeline processing")
	}
	return models.CommandOK("pipeline processing started", map[string]any{
		"assetName": s.controller.AssetName(),
	})
}

func (s *Session) handleStopProcessing(ctx context.Context, _ models.CommandRequest) models.CommandResponse {
	if !s.StopProcessing(ctx) {
		return models.CommandFailed("failed to stop pipeline processing")
	}
	return models.CommandOK("pipeline processing stopped", nil)
}

func (s *Session) handleCaptureImage(ctx context.Context, req models.CommandRequest) models.CommandResponse {
	token, ok := req.StringParam(models.ParamMediaProfileToken)
	if !ok {
		return models.CommandBadRequest("missing parameter " + models.ParamMediaProfileToken)
	}

	image, err := s.controller.CaptureSnapshot(ctx, token)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to capture camera image")
		return models.CommandFailed("failed to capture image")
	}

	thumb, err := helpers.ResizeJPEG(image, s.opts.ThumbnailMaxWidth, s.opts.ThumbnailMaxHeight, s.opts.ThumbnailQuality)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Thumbnail resize failed, sending original image")
		thumb = image
	}

	uri := helpers.JPEGDataURI(thumb)
	s.sendTelemetry(ctx, map[string]any{models.TelemetryCameraCaptureImage: uri})
	return models.CommandOK("image captured", map[string]any{
		"size":  len(thumb),
		"image": uri,
	})
}

func (s *Session) handleRestartCamera(ctx context.Context, _ models.CommandRequest) models.CommandResponse {
	if err := s.controller.RestartCamera(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to restart camera")
		return models.CommandFailed("failed to restart camera")
	}
	return models.CommandOK("camera restart requested", nil)
}
