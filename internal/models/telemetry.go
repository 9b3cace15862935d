package models

import (
	"fmt"
	"time"
)

// Telemetry and reported property names sent upward through the shadow.
const (
	TelemetryHeartbeat            = "tlSystemHeartbeat"
	TelemetryInference            = "tlInference"
	TelemetryInferenceCount       = "tlInferenceCount"
	TelemetryInferenceVideoLink   = "tlInferenceVideoLink"
	TelemetryCameraCaptureImage   = "tlCameraCaptureImage"
	TelemetryFreeMemory           = "tlFreeMemory"
	TelemetryConnectedCameras     = "tlConnectedCameras"
	EventConnectionState          = "evCameraConnectionState"
	EventProcessingState          = "evCameraProcessingState"
	EventGatewayRestart           = "evGatewayRestart"
	PropertyConnectionState       = "rpCameraConnectionState"
	PropertyProcessingState       = "rpCameraProcessingState"
	PropertyAssetName             = "rpAssetName"
	PropertyLastVideoLink         = "rpLastInferenceVideoLink"
	ProcessingStateActive         = "active"
	ProcessingStateInactive       = "inactive"
	ConnectionStateConnected      = "connected"
	ConnectionStateDisconnected   = "disconnected"
	DesiredVersionKey             = "$version"
	ReportedAckCodeCompleted      = 200
	ReportedAckDescriptionApplied = "completed"
)

// EventType is an upstream pipeline event kind that is counted per device.
type EventType int

const (
	EventRecordingStarted EventType = iota
	EventRecordingStopped
	EventRecordingAvailable
	EventMediaSessionEstablished
	EventAuthenticationError
	EventAuthorizationError
	EventDataDropped
	EventMediaFormatError
	EventNetworkError
	EventProtocolError
	EventStorageError
	numEventTypes
)

// eventTypeNames are the upstream eventType strings, indexed by EventType.
var eventTypeNames = [...]string{
	EventRecordingStarted:        "Operational.RecordingStarted",
	EventRecordingStopped:        "Operational.RecordingStopped",
	EventRecordingAvailable:      "Operational.RecordingAvailable",
	EventMediaSessionEstablished: "Diagnostics.MediaSessionEstablished",
	EventAuthenticationError:     "Diagnostics.AuthenticationError",
	EventAuthorizationError:      "Diagnostics.AuthorizationError",
	EventDataDropped:             "Diagnostics.DataDropped",
	EventMediaFormatError:        "Diagnostics.MediaFormatError",
	EventNetworkError:            "Diagnostics.NetworkError",
	EventProtocolError:           "Diagnostics.ProtocolError",
	EventStorageError:            "Diagnostics.StorageError",
}

// eventFields are the telemetry field names, indexed by EventType.
var eventFields = [...]string{
	EventRecordingStarted:        "evRecordingStarted",
	EventRecordingStopped:        "evRecordingStopped",
	EventRecordingAvailable:      "evRecordingAvailable",
	EventMediaSessionEstablished: "evMediaSessionEstablished",
	EventAuthenticationError:     "evAuthenticationError",
	EventAuthorizationError:      "evAuthorizationError",
	EventDataDropped:             "evDataDropped",
	EventMediaFormatError:        "evMediaFormatError",
	EventNetworkError:            "evNetworkError",
	EventProtocolError:           "evProtocolError",
	EventStorageError:            "evStorageError",
}

// A table shorter or longer than the enum fails compilation. A gap inside a keyed
// table still compiles, so init rejects empty entries.
var (
	_ = [1]struct{}{}[len(eventTypeNames)-int(numEventTypes)]
	_ = [1]struct{}{}[len(eventFields)-int(numEventTypes)]
)

func init() {
	for et := EventType(0); et < numEventTypes; et++ {
		if eventTypeNames[et] == "" || eventFields[et] == "" {
			panic(fmt.Sprintf("models: event type %d has no table entry", et))
		}
	}
}

var eventTypesByName = func() map[string]EventType {
	m := make(map[string]EventType, numEventTypes)
	for i, name := range eventTypeNames {
		m[name] = EventType(i)
	}
	return m
}()

// ParseEventType resolves an upstream eventType string. A namespace prefix such as
// "Microsoft.VideoAnalyzer." is ignored.
func ParseEventType(raw string) (EventType, bool) {
	if et, ok := eventTypesByName[raw]; ok {
		return et, true
	}
	for name, et := range eventTypesByName {
		if len(raw) > len(name) && raw[len(raw)-len(name)-1] == '.' && raw[len(raw)-len(name):] == name {
			return et, true
		}
	}
	return 0, false
}

func (e EventType) String() string {
	if e < 0 || e >= numEventTypes {
		return "unknown"
	}
	return eventTypeNames[e]
}

// Field returns the telemetry field an event type is counted under.
func (e EventType) Field() string {
	if e < 0 || e >= numEventTypes {
		return ""
	}
	return eventFields[e]
}

// Message is an inbound message from a collaborator module input.
type Message struct {
	Data       []byte            `json:"data"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Inference is a single detection reported by the pipeline.
type Inference struct {
	Type   string         `json:"type"`
	Entity map[string]any `json:"entity,omitempty"`
	Motion map[string]any `json:"motion,omitempty"`
	Extra  map[string]any `json:"extensions,omitempty"`
}

// InferenceMessage is the pipeline telemetry body carrying zero or more inferences.
type InferenceMessage struct {
	Timestamp  string      `json:"timestamp,omitempty"`
	Inferences []Inference `json:"inferences"`
}

// PipelineEvent is a diagnostic or operational event raised by the pipeline.
type PipelineEvent struct {
	EventType string         `json:"eventType"`
	Subject   string         `json:"subject"`
	EventTime time.Time      `json:"eventTime"`
	Data      map[string]any `json:"data,omitempty"`
}
