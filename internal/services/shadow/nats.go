package shadow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"vision-gateway-go/internal/config"
	"vision-gateway-go/internal/logging"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/messaging"
	"vision-gateway-go/internal/services/provisioning"
)

const updateAttempts = 3

// OpenBucket returns the shadow KeyValue bucket, creating it on first use.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "device shadow documents",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("open shadow bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// NewNatsFactory returns a Factory producing NATS backed clients that share one connection and bucket.
func NewNatsFactory(cfg *config.Config, msg *messaging.Service, kv jetstream.KeyValue) Factory {
	base := logging.NewServiceLogger(cfg, "shadow")
	return func(desc provisioning.ConnectionDescriptor) (Client, error) {
		if desc.DeviceID == "" {
			return nil, errors.New("connection descriptor has no device id")
		}
		return &NatsClient{
			deviceID: desc.DeviceID,
			hub:      desc.AssignedHub,
			prefix:   cfg.SubjectPrefix,
			timeout:  cfg.RemoteCallTimeout,
			msg:      msg,
			kv:       kv,
			logger:   logging.WithDevice(base, desc.DeviceID),
			commands: make(map[string]CommandHandler),
		}, nil
	}
}

// NatsClient keeps the desired and reported documents in JetStream KeyValue under
// <deviceId>.desired and <deviceId>.reported. Commands arrive as requests on
// <prefix>.devices.<deviceId>.commands.<name>; events go to <prefix>.devices.<deviceId>.events.
type NatsClient struct {
	deviceID string
	hub      string
	prefix   string
	timeout  time.Duration
	msg      *messaging.Service
	kv       jetstream.KeyValue
	logger   zerolog.Logger

	mu           sync.Mutex
	open         bool
	commands     map[string]CommandHandler
	onDelta      DeltaHandler
	onError      func(error)
	onConnect    func()
	onDisconnect func(error)

	sub            *nats.Subscription
	stopWatch      context.CancelFunc
	removeListener func()
	watchDone      sync.WaitGroup
	lastDesired    map[string]any
}

func (c *NatsClient) desiredKey() string  { return c.deviceID + ".desired" }
func (c *NatsClient) reportedKey() string { return c.deviceID + ".reported" }

// CommandSubject is the subject a device command is requested on.
func CommandSubject(prefix, deviceID, name string) string {
	return fmt.Sprintf("%s.devices.%s.commands.%s", prefix, deviceID, name)
}

// EventSubject is the subject device events are published on.
func EventSubject(prefix, deviceID string) string {
	return fmt.Sprintf("%s.devices.%s.events", prefix, deviceID)
}

func (c *NatsClient) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}
	if !c.msg.IsConnected() {
		return fmt.Errorf("open shadow for %s: nats not connected", c.deviceID)
	}

	sub, err := c.msg.Subscribe(CommandSubject(c.prefix, c.deviceID, "*"), c.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe commands for %s: %w", c.deviceID, err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	watcher, err := c.kv.Watch(watchCtx, c.desiredKey())
	if err != nil {
		cancel()
		_ = sub.Unsubscribe()
		return fmt.Errorf("watch desired properties for %s: %w", c.deviceID, err)
	}

	c.sub = sub
	c.stopWatch = cancel
	c.lastDesired = nil
	c.removeListener = c.msg.AddListener(messaging.ConnectionListener{
		OnDisconnect: c.fireDisconnect,
		OnReconnect:  c.fireConnect,
		OnError:      c.fireError,
	})
	c.open = true

	c.watchDone.Add(1)
	go c.watchDesired(watchCtx, watcher)

	c.logger.Info().Str("hub", c.hub).Msg("Shadow connection opened")
	go c.fireConnect()
	return nil
}

func (c *NatsClient) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	sub, stop, remove := c.sub, c.stopWatch, c.removeListener
	c.sub, c.stopWatch, c.removeListener = nil, nil, nil
	c.mu.Unlock()

	var errs []error
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("unsubscribe commands: %w", err))
		}
	}
	if remove != nil {
		remove()
	}
	if stop != nil {
		stop()
	}

	done := make(chan struct{})
	go func() {
		c.watchDone.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for desired watcher: %w", ctx.Err()))
	}

	c.logger.Info().Msg("Shadow connection closed")
	return errors.Join(errs...)
}

func (c *NatsClient) watchDesired(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer c.watchDone.Done()
	defer func() {
		if err := watcher.Stop(); err != nil {
			c.logger.Debug().Err(err).Msg("Stopping desired watcher")
		}
	}()

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// initial values replayed
				if !delivered {
					delivered = true
					c.deliver(map[string]any{})
				}
				continue
			}
			delivered = true
			c.deliver(c.diffDesired(entry))
		}
	}
}

func (c *NatsClient) diffDesired(entry jetstream.KeyValueEntry) map[string]any {
	doc := map[string]any{}
	if entry.Operation() == jetstream.KeyValuePut {
		if err := json.Unmarshal(entry.Value(), &doc); err != nil {
			c.logger.Warn().Err(err).Msg("Desired document is not valid JSON")
			c.fireError(err)
			doc = map[string]any{}
		}
	}

	delta := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		if prev, ok := c.lastDesired[k]; !ok || !reflect.DeepEqual(prev, v) {
			delta[k] = v
		}
	}
	for k := range c.lastDesired {
		if _, ok := doc[k]; !ok {
			delta[k] = nil
		}
	}
	c.lastDesired = doc
	delta[models.DesiredVersionKey] = entry.Revision()
	return delta
}

func (c *NatsClient) deliver(delta map[string]any) {
	c.mu.Lock()
	h := c.onDelta
	c.mu.Unlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Desired property handler panicked")
			c.fireError(fmt.Errorf("desired property handler panic: %v", r))
		}
	}()
	h(delta)
}

func (c *NatsClient) handleCommand(m *nats.Msg) {
	name := m.Subject[strings.LastIndexByte(m.Subject, '.')+1:]

	c.mu.Lock()
	h, ok := c.commands[name]
	c.mu.Unlock()

	resp := models.CommandResponse{StatusCode: 404, Message: "unknown command " + name}
	if ok {
		req := models.CommandRequest{Name: name}
		if len(m.Data) > 0 {
			if err := json.Unmarshal(m.Data, &req.Payload); err != nil {
				c.respond(m, models.CommandBadRequest("payload is not a JSON object"))
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		resp = h(ctx, req)
		cancel()
	}
	c.respond(m, resp)
}

func (c *NatsClient) respond(m *nats.Msg, resp models.CommandResponse) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err == nil {
		err = m.Respond(data)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("subject", m.Subject).Msg("Failed to reply to command")
	}
}

func (c *NatsClient) GetPropertiesSnapshot(ctx context.Context) (*Properties, error) {
	desired, _, err := c.getDoc(ctx, c.desiredKey())
	if err != nil {
		return nil, err
	}
	reported, _, err := c.getDoc(ctx, c.reportedKey())
	if err != nil {
		return nil, err
	}
	return &Properties{Desired: desired, Reported: reported}, nil
}

func (c *NatsClient) getDoc(ctx context.Context, key string) (map[string]any, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entry, err := c.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return map[string]any{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, entry.Revision(), nil
}

// UpdateReportedProperties merges patch into the reported document. A nil value removes the key.
func (c *NatsClient) UpdateReportedProperties(ctx context.Context, patch map[string]any) error {
	if !c.isOpen() {
		return ErrNotOpen
	}

	var lastErr error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		doc, rev, err := c.getDoc(ctx, c.reportedKey())
		if err != nil {
			return err
		}
		merged := maps.Clone(doc)
		for k, v := range patch {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode reported properties: %w", err)
		}

		wctx, cancel := context.WithTimeout(ctx, c.timeout)
		if rev == 0 {
			_, err = c.kv.Create(wctx, c.reportedKey(), data)
		} else {
			_, err = c.kv.Update(wctx, c.reportedKey(), data, rev)
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Reported properties write conflicted, retrying")
	}
	return fmt.Errorf("update reported properties for %s: %w", c.deviceID, lastErr)
}

func (c *NatsClient) OnDesiredPropertiesDelta(handler DeltaHandler) {
	c.mu.Lock()
	c.onDelta = handler
	c.mu.Unlock()
}

func (c *NatsClient) OnCommand(name string, handler CommandHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	c.commands[name] = handler
	return nil
}

func (c *NatsClient) SendEvent(ctx context.Context, payload map[string]any) error {
	if !c.isOpen() {
		return ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	envelope := map[string]any{
		"id":       uuid.NewString(),
		"deviceId": c.deviceID,
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
		"body":     payload,
	}
	if err := c.msg.Publish(EventSubject(c.prefix, c.deviceID), envelope); err != nil {
		return fmt.Errorf("publish event for %s: %w", c.deviceID, err)
	}
	return nil
}

func (c *NatsClient) OnError(handler func(error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *NatsClient) OnConnect(handler func()) {
	c.mu.Lock()
	c.onConnect = handler
	c.mu.Unlock()
}

func (c *NatsClient) OnDisconnect(handler func(error)) {
	c.mu.Lock()
	c.onDisconnect = handler
	c.mu.Unlock()
}

func (c *NatsClient) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *NatsClient) fireError(err error) {
	c.mu.Lock()
	h := c.onError
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (c *NatsClient) fireConnect() {
	c.mu.Lock()
	h := c.onConnect
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

func (c *NatsClient) fireDisconnect(err error) {
	c.mu.Lock()
	h := c.onDisconnect
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}
