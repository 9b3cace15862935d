package shadow

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/provisioning"
)

// MemoryClient is an in-process Client. Desired deltas, command invocations and
// transport callbacks are driven by the owner through PushDelta, Invoke and the Fire methods.
type MemoryClient struct {
	DeviceID string
	// OpenErr, when set, makes Open fail.
	OpenErr error

	mu           sync.Mutex
	open         bool
	opens        int
	desired      map[string]any
	reported     map[string]any
	events       []map[string]any
	commands     map[string]CommandHandler
	onDelta      DeltaHandler
	onError      func(error)
	onConnect    func()
	onDisconnect func(error)
}

func NewMemoryClient(deviceID string) *MemoryClient {
	return &MemoryClient{
		DeviceID: deviceID,
		desired:  map[string]any{},
		reported: map[string]any{},
		commands: map[string]CommandHandler{},
	}
}

// MemoryFactory hands out one MemoryClient per device and remembers it.
type MemoryFactory struct {
	mu      sync.Mutex
	clients map[string]*MemoryClient
	// OpenErr is copied into every new client.
	OpenErr error
}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{clients: map[string]*MemoryClient{}}
}

func (f *MemoryFactory) Factory() Factory {
	return func(desc provisioning.ConnectionDescriptor) (Client, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c := NewMemoryClient(desc.DeviceID)
		c.OpenErr = f.OpenErr
		f.clients[desc.DeviceID] = c
		return c, nil
	}
}

// Client returns the latest client created for deviceID.
func (f *MemoryFactory) Client(deviceID string) *MemoryClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[deviceID]
}

func (c *MemoryClient) Open(context.Context) error {
	c.mu.Lock()
	if c.OpenErr != nil {
		c.mu.Unlock()
		return c.OpenErr
	}
	c.open = true
	c.opens++
	h := c.onConnect
	c.mu.Unlock()
	if h != nil {
		h()
	}
	return nil
}

func (c *MemoryClient) Close(context.Context) error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *MemoryClient) GetPropertiesSnapshot(context.Context) (*Properties, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Properties{Desired: maps.Clone(c.desired), Reported: maps.Clone(c.reported)}, nil
}

func (c *MemoryClient) UpdateReportedProperties(_ context.Context, patch map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	for k, v := range patch {
		if v == nil {
			delete(c.reported, k)
			continue
		}
		c.reported[k] = v
	}
	return nil
}

func (c *MemoryClient) OnDesiredPropertiesDelta(handler DeltaHandler) {
	c.mu.Lock()
	c.onDelta = handler
	c.mu.Unlock()
}

func (c *MemoryClient) OnCommand(name string, handler CommandHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	c.commands[name] = handler
	return nil
}

func (c *MemoryClient) SendEvent(_ context.Context, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.events = append(c.events, maps.Clone(payload))
	return nil
}

func (c *MemoryClient) OnError(handler func(error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *MemoryClient) OnConnect(handler func()) {
	c.mu.Lock()
	c.onConnect = handler
	c.mu.Unlock()
}

func (c *MemoryClient) OnDisconnect(handler func(error)) {
	c.mu.Lock()
	c.onDisconnect = handler
	c.mu.Unlock()
}

// PushDelta merges delta into the desired document and delivers it synchronously.
func (c *MemoryClient) PushDelta(delta map[string]any) {
	c.mu.Lock()
	for k, v := range delta {
		if k != models.DesiredVersionKey {
			c.desired[k] = v
		}
	}
	h := c.onDelta
	c.mu.Unlock()
	if h != nil {
		h(delta)
	}
}

// Invoke calls a registered command handler the way a remote caller would.
func (c *MemoryClient) Invoke(ctx context.Context, name string, payload map[string]any) models.CommandResponse {
	c.mu.Lock()
	h, ok := c.commands[name]
	c.mu.Unlock()
	if !ok {
		return models.CommandResponse{StatusCode: 404, Message: "unknown command " + name}
	}
	return h(ctx, models.CommandRequest{Name: name, Payload: payload})
}

func (c *MemoryClient) FireError(err error) {
	c.mu.Lock()
	h := c.onError
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (c *MemoryClient) FireDisconnect(err error) {
	c.mu.Lock()
	h := c.onDisconnect
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Events returns a copy of every event sent so far.
func (c *MemoryClient) Events() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.events))
	copy(out, c.events)
	return out
}

// Reported returns a copy of the reported document.
func (c *MemoryClient) Reported() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.reported)
}

// Commands lists registered command names.
func (c *MemoryClient) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	return names
}

// Opens counts successful Open calls.
func (c *MemoryClient) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}
