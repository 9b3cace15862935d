package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingField is returned when a required CameraInfo field is empty.
var ErrMissingField = errors.New("missing required field")

// Device model identifiers. The model decides which pipeline template and settings a camera gets.
const (
	ModelMotionDetection = "motion-detection"
	ModelObjectDetection = "object-detection"
)

// CameraInfo describes a physical camera. It is immutable once a session owns it.
type CameraInfo struct {
	DeviceID         string `json:"deviceId" binding:"required"`
	Name             string `json:"name"`
	Address          string `json:"address" binding:"required"` // ONVIF host[:port] or rtsp:// URL
	Username         string `json:"username"`
	Password         string `json:"password"`
	PipelineTopology string `json:"pipelineTopology"` // blob document reference
	ModelID          string `json:"modelId"`
}

// Validate checks the fields a session cannot be created without.
func (c CameraInfo) Validate() error {
	switch {
	case strings.TrimSpace(c.DeviceID) == "":
		return fmt.Errorf("%w: deviceId", ErrMissingField)
	case strings.TrimSpace(c.Address) == "":
		return fmt.Errorf("%w: address", ErrMissingField)
	case strings.TrimSpace(c.ModelID) == "":
		return fmt.Errorf("%w: modelId", ErrMissingField)
	}
	return nil
}

// IsRTSP reports whether Address is already a stream URL, so no ONVIF lookup is needed.
func (c CameraInfo) IsRTSP() bool {
	lower := strings.ToLower(c.Address)
	return strings.HasPrefix(lower, "rtsp://") || strings.HasPrefix(lower, "rtsps://")
}

// Redacted returns a copy safe to log or return over the API.
func (c CameraInfo) Redacted() CameraInfo {
	if c.Password != "" {
		c.Password = "***"
	}
	return c
}

// DeviceResponse for API
type DeviceResponse struct {
	Camera       CameraInfo     `json:"camera"`
	State        SessionState   `json:"state"`
	Health       HealthLevel    `json:"health"`
	AssetName    string         `json:"assetName,omitempty"`
	Settings     map[string]any `json:"settings"`
	CreatedAt    time.Time      `json:"createdAt"`
	InferenceCnt int64          `json:"inferenceCount"`
}
