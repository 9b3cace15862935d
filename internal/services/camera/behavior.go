package camera

import (
	"context"
	"fmt"
	"strconv"

	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/settings"
)

// Behavior is what differs between camera models.
type Behavior interface {
	// Settings is the schema the session's reconciler is built from.
	Settings() settings.Schema
	// BuildPipelineParams maps current settings to live pipeline parameters.
	BuildPipelineParams(s *settings.Reconciler) map[string]any
	// HandleDesiredSetting observes an applied setting and reports whether a
	// running pipeline must be restarted for it to take effect.
	HandleDesiredSetting(key string, value any) (restart bool)
	// OnReady runs once, after the first desired-property sync.
	OnReady(ctx context.Context, s *Session)
}

// NewBehavior picks the behavior for a model id.
func NewBehavior(modelID string) (Behavior, error) {
	switch modelID {
	case models.ModelMotionDetection:
		return MotionBehavior{}, nil
	case models.ModelObjectDetection:
		return ObjectDetectionBehavior{}, nil
	default:
		return nil, fmt.Errorf("unsupported camera model %q", modelID)
	}
}

// autoStart starts processing when wpAutoStart is set.
func autoStart(ctx context.Context, s *Session) {
	if !s.settings.Bool(settings.KeyAutoStart) {
		return
	}
	if !s.info.IsRTSP() {
		s.logger.Info().Msg("Auto-start needs a media profile token for ONVIF cameras, waiting for startProcessing command")
		return
	}
	s.logger.Info().Msg("Auto-starting pipeline")
	if !s.StartProcessing(ctx, StartParams{}) {
		s.logger.Warn().Msg("Auto-start failed, waiting for startProcessing command")
	}
}

type MotionBehavior struct{}

func (MotionBehavior) Settings() settings.Schema {
	return settings.MotionSchema()
}

func (MotionBehavior) BuildPipelineParams(s *settings.Reconciler) map[string]any {
	return map[string]any{
		"motionSensitivity": s.String(settings.KeySensitivity),
	}
}

func (MotionBehavior) HandleDesiredSetting(key string, _ any) bool {
	return key == settings.KeySensitivity
}

func (MotionBehavior) OnReady(ctx context.Context, s *Session) {
	autoStart(ctx, s)
}

type ObjectDetectionBehavior struct{}

func (ObjectDetectionBehavior) Settings() settings.Schema {
	return settings.ObjectDetectionSchema()
}

func (ObjectDetectionBehavior) BuildPipelineParams(s *settings.Reconciler) map[string]any {
	return map[string]any{
		"detectionClasses":    s.String(settings.KeyDetectionClasses),
		"confidenceThreshold": strconv.FormatFloat(s.Float(settings.KeyConfidenceThreshold), 'f', -1, 64),
		"frameRate":           strconv.Itoa(s.Int(settings.KeyInferenceFrameRate)),
	}
}

func (ObjectDetectionBehavior) HandleDesiredSetting(key string, _ any) bool {
	switch key {
	case settings.KeyDetectionClasses, settings.KeyConfidenceThreshold, settings.KeyInferenceFrameRate:
		return true
	}
	return false
}

func (ObjectDetectionBehavior) OnReady(ctx context.Context, s *Session) {
	autoStart(ctx, s)
}
