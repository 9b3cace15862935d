package models

import "fmt"

// SessionState is the lifecycle state of a camera device session.
type SessionState string

const (
	StateProvisioning        SessionState = "provisioning"
	StateConnecting          SessionState = "connecting"
	StateAwaitingInitialSync SessionState = "awaiting_initial_sync"
	StateReady               SessionState = "ready"
	StatePipelineActive      SessionState = "pipeline_active"
	StatePipelineInactive    SessionState = "pipeline_inactive"
	StateDeleting            SessionState = "deleting"
	StateFaulted             SessionState = "faulted"
)

// String returns the string representation of SessionState
func (s SessionState) String() string {
	return string(s)
}

// Alive reports whether a session in this state still occupies its device id.
func (s SessionState) Alive() bool {
	return s != StateDeleting && s != StateFaulted
}

// CanStart reports whether a pipeline start may be attempted from this state.
func (s SessionState) CanStart() bool {
	return s == StateReady || s == StatePipelineInactive
}

// HealthLevel is the aggregated health of a session or the gateway.
type HealthLevel int

const (
	HealthGood HealthLevel = iota
	HealthWarning
	HealthCritical
)

func (h HealthLevel) String() string {
	switch h {
	case HealthGood:
		return "good"
	case HealthWarning:
		return "warning"
	case HealthCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name in JSON payloads.
func (h HealthLevel) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a level written by MarshalText.
func (h *HealthLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "good":
		*h = HealthGood
	case "warning":
		*h = HealthWarning
	case "critical":
		*h = HealthCritical
	default:
		return fmt.Errorf("unknown health level %q", text)
	}
	return nil
}

// Worst returns the more severe of two levels.
func Worst(a, b HealthLevel) HealthLevel {
	if b > a {
		return b
	}
	return a
}
