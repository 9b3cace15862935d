package shadow

import (
	"context"
	"errors"

	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/provisioning"
)

var (
	// ErrDuplicateHandler is returned when a command name already has a handler.
	ErrDuplicateHandler = errors.New("command handler already registered")
	// ErrNotOpen is returned by operations that need an open connection.
	ErrNotOpen = errors.New("shadow connection not open")
)

// CommandHandler serves one direct command.
type CommandHandler func(ctx context.Context, req models.CommandRequest) models.CommandResponse

// DeltaHandler receives desired-property deltas. The first call after Open carries the
// current desired document, or an empty delta when there is none.
type DeltaHandler func(delta map[string]any)

// Properties is a snapshot of both halves of the shadow document.
type Properties struct {
	Desired  map[string]any `json:"desired"`
	Reported map[string]any `json:"reported"`
}

// Client is one device's connection to the shadow service.
type Client interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	GetPropertiesSnapshot(ctx context.Context) (*Properties, error)
	UpdateReportedProperties(ctx context.Context, patch map[string]any) error
	OnDesiredPropertiesDelta(handler DeltaHandler)
	OnCommand(name string, handler CommandHandler) error
	SendEvent(ctx context.Context, payload map[string]any) error
	OnError(handler func(error))
	OnConnect(handler func())
	OnDisconnect(handler func(error))
}

// Factory creates a client for a provisioned device.
type Factory func(desc provisioning.ConnectionDescriptor) (Client, error)
