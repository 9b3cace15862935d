package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vision-gateway-go/internal/metrics"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/inference"
	"vision-gateway-go/internal/services/modules"
	"vision-gateway-go/internal/services/pipeline"
	"vision-gateway-go/internal/services/provisioning"
	"vision-gateway-go/internal/services/settings"
	"vision-gateway-go/internal/services/shadow"
)

// ConnectionError means the shadow connection could not be opened.
type ConnectionError struct {
	DeviceID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("shadow connection for %s: %v", e.DeviceID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type ConnectStatus string

const (
	ConnectConnected ConnectStatus = "connected"
	ConnectFailed    ConnectStatus = "failed"
)

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	Status  ConnectStatus
	Message string
	Err     error
}

// StartParams are the inputs of a startProcessing command.
type StartParams struct {
	PipelineInstanceName string
	MediaProfileToken    string
}

// Options tune a session. Zero values fall back to defaults.
type Options struct {
	TickInterval       time.Duration
	CallTimeout        time.Duration
	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	ThumbnailQuality   int
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.ThumbnailMaxWidth <= 0 {
		o.ThumbnailMaxWidth = 640
	}
	if o.ThumbnailMaxHeight <= 0 {
		o.ThumbnailMaxHeight = 360
	}
	if o.ThumbnailQuality <= 0 {
		o.ThumbnailQuality = 75
	}
	return o
}

// Deps are the collaborators a session is built from.
type Deps struct {
	Invoker    modules.Invoker
	Factory    shadow.Factory
	Pipeline   pipeline.Options
	Descriptor *pipeline.Descriptor
	Metrics    *metrics.Registry
	Logger     zerolog.Logger
	Clock      func() time.Time
	Options    Options
	Behavior   Behavior // nil picks one from the camera model
}

// Session is the virtual device for one camera. Transitions and reconciliation are
// serialized by mu; the inference ticker never takes mu. lifecycleMu serializes
// Connect, Close and DeleteSession so a shadow client can be closed without holding mu.
type Session struct {
	info       models.CameraInfo
	behavior   Behavior
	settings   *settings.Reconciler
	controller *pipeline.Controller
	tracker    *inference.WindowTracker
	factory    shadow.Factory
	metrics    *metrics.Registry
	opts       Options
	logger     zerolog.Logger
	clock      func() time.Time
	gate       *Gate
	createdAt  time.Time

	lifecycleMu sync.Mutex

	mu         sync.Mutex
	state      atomic.Value // models.SessionState, written under mu
	tickCancel context.CancelFunc
	tickWG     sync.WaitGroup

	clientMu sync.RWMutex
	client   shadow.Client

	health atomic.Int32

	countsMu    sync.Mutex
	eventCounts map[models.EventType]int64
	lastLink    atomic.Value // string
}

// NewSession builds a session in the Provisioning state.
func NewSession(info models.CameraInfo, deps Deps) (*Session, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	behavior := deps.Behavior
	if behavior == nil {
		var err error
		if behavior, err = NewBehavior(info.ModelID); err != nil {
			return nil, err
		}
	}
	if deps.Descriptor == nil {
		return nil, errors.New("pipeline descriptor is required")
	}
	if deps.Factory == nil {
		return nil, errors.New("shadow factory is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger.With().Str("device_id", info.DeviceID).Logger()
	s := &Session{
		info:        info,
		behavior:    behavior,
		settings:    settings.NewReconciler(behavior.Settings(), logger),
		controller:  pipeline.NewController(deps.Pipeline, deps.Invoker, info, deps.Descriptor, logger),
		tracker:     inference.NewWindowTracker(),
		factory:     deps.Factory,
		metrics:     deps.Metrics,
		opts:        deps.Options.withDefaults(),
		logger:      logger,
		clock:       clock,
		gate:        NewGate(),
		createdAt:   clock(),
		eventCounts: make(map[models.EventType]int64),
	}
	s.controller.SetClock(clock)
	s.state.Store(models.StateProvisioning)
	s.lastLink.Store("")
	return s, nil
}

func (s *Session) DeviceID() string { return s.info.DeviceID }

func (s *Session) Info() models.CameraInfo { return s.info }

// Ready is closed once the initial property sync has completed.
func (s *Session) Ready() <-chan struct{} { return s.gate.ch }

func (s *Session) Settings() map[string]any { return s.settings.Snapshot() }

func (s *Session) Health() models.HealthLevel { return models.HealthLevel(s.health.Load()) }

// State returns the current lifecycle state without waiting for a transition in progress.
func (s *Session) State() models.SessionState {
	return s.state.Load().(models.SessionState)
}

// setState must be called with mu held.
func (s *Session) setState(st models.SessionState) {
	prev := s.State()
	s.state.Store(st)
	if prev != st {
		s.logger.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("Session state changed")
	}
}

func (s *Session) shadowClient() shadow.Client {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

func (s *Session) setClient(c shadow.Client) {
	s.clientMu.Lock()
	s.client = c
	s.clientMu.Unlock()
}

// detachClient clears and returns the current client.
func (s *Session) detachClient() shadow.Client {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	c := s.client
	s.client = nil
	return c
}

// closeClient must be called without mu held: the client's delta watcher may be
// waiting on mu and Close waits for the watcher.
func (s *Session) closeClient(ctx context.Context, client shadow.Client) error {
	if client == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return client.Close(cctx)
}

// Connect opens the shadow connection, replacing any open one, and registers the
// command and delta handlers.
func (s *Session) Connect(ctx context.Context, desc provisioning.ConnectionDescriptor) ConnectResult {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	prev := s.State()
	if prev == models.StateDeleting {
		s.mu.Unlock()
		return ConnectResult{Status: ConnectFailed, Message: "session is being deleted"}
	}
	old := s.detachClient()
	s.mu.Unlock()

	if err := s.closeClient(ctx, old); err != nil {
		s.logger.Warn().Err(err).Msg("Closing previous shadow connection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.State()
	s.setState(models.StateConnecting)

	client, err := s.factory(desc)
	if err == nil {
		err = s.register(client)
	}
	if err == nil {
		octx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		err = client.Open(octx)
		cancel()
	}
	if err != nil {
		cerr := &ConnectionError{DeviceID: s.info.DeviceID, Err: err}
		s.setState(models.StateFaulted)
		s.logger.Error().Err(cerr).Msg("Failed to connect device")
		return ConnectResult{Status: ConnectFailed, Message: cerr.Error(), Err: cerr}
	}

	s.setClient(client)
	switch {
	case !s.gate.Opened():
		s.setState(models.StateAwaitingInitialSync)
	case prev == models.StateReady || prev == models.StatePipelineActive || prev == models.StatePipelineInactive:
		s.setState(prev)
	default:
		s.setState(models.StateReady)
	}

	s.logger.Info().Str("hub", desc.AssignedHub).Msg("Device connected")
	return ConnectResult{Status: ConnectConnected, Message: "connected"}
}

func (s *Session) register(client shadow.Client) error {
	client.OnDesiredPropertiesDelta(s.onDesiredDelta)
	client.OnError(s.onShadowError)
	client.OnDisconnect(s.onShadowDisconnect)
	client.OnConnect(s.onShadowConnect)

	handlers := s.commandHandlers()
	for _, name := range models.SessionCommands {
		if err := client.OnCommand(name, s.guardCommand(name, handlers[name])); err != nil {
			return err
		}
	}
	return nil
}

// onDesiredDelta reconciles a delta, acknowledges it and opens the ready gate on the first one.
func (s *Session) onDesiredDelta(delta map[string]any) {
	defer s.recoverHandler("desired properties")

	patch := s.applyDelta(delta)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CallTimeout)
	defer cancel()

	if len(patch) > 0 {
		version := delta[models.DesiredVersionKey]
		ack := make(map[string]any, len(patch))
		for key, value := range patch {
			ack[key] = map[string]any{
				"value": value,
				"ac":    models.ReportedAckCodeCompleted,
				"ad":    models.ReportedAckDescriptionApplied,
				"av":    version,
			}
		}
		s.updateReported(ctx, ack)
	}

	if s.gate.Open() {
		s.logger.Info().Msg("Initial property sync complete, device ready")
		s.sendTelemetry(ctx, map[string]any{models.EventConnectionState: models.ConnectionStateConnected})
		s.updateReported(ctx, map[string]any{
			models.PropertyConnectionState: models.ConnectionStateConnected,
			models.PropertyProcessingState: models.ProcessingStateInactive,
		})
		s.behavior.OnReady(context.Background(), s)
	}
}

func (s *Session) applyDelta(delta map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	patch := s.settings.Reconcile(delta)
	active := s.State() == models.StatePipelineActive
	for key, value := range patch {
		if s.behavior.HandleDesiredSetting(key, value) && active {
			s.logger.Info().Str("key", key).Msg("Setting applies on the next pipeline start")
		}
	}
	if !s.gate.Opened() && s.State() == models.StateAwaitingInitialSync {
		s.setState(models.StateReady)
	}
	return patch
}

// StartProcessing starts the live pipeline. It waits for the initial sync and is
// refused while a pipeline is already active.
func (s *Session) StartProcessing(ctx context.Context, params StartParams) bool {
	if err := s.gate.Wait(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Start abandoned before initial property sync")
		return false
	}

	s.mu.Lock()
	st := s.State()
	if st == models.StatePipelineActive {
		s.mu.Unlock()
		s.logger.Warn().Msg("Pipeline already active, start refused")
		return false
	}
	if !st.CanStart() {
		s.mu.Unlock()
		s.logger.Warn().Str("state", st.String()).Msg("Cannot start pipeline in this state")
		return false
	}

	if params.PipelineInstanceName != "" && params.PipelineInstanceName != s.info.DeviceID {
		s.logger.Debug().Str("requested", params.PipelineInstanceName).Msg("Live pipeline is always named after the device")
	}

	started := s.controller.Start(ctx, pipeline.StartParams{
		MediaProfileToken: params.MediaProfileToken,
		Parameters:        s.behavior.BuildPipelineParams(s.settings),
	})
	if !started {
		s.setState(models.StatePipelineInactive)
		s.mu.Unlock()
		s.reportProcessingState(ctx, models.ProcessingStateInactive)
		return false
	}

	s.setState(models.StatePipelineActive)
	s.tracker.Reset(s.clock())
	s.startTicker()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActivePipeline.Inc()
	}
	s.reportProcessingState(ctx, models.ProcessingStateActive)
	s.updateReported(ctx, map[string]any{models.PropertyAssetName: s.controller.AssetName()})
	return true
}

// StopProcessing stops the inference ticker and deactivates the pipeline.
func (s *Session) StopProcessing(ctx context.Context) bool {
	s.mu.Lock()
	wasActive := s.State() == models.StatePipelineActive
	s.stopTicker()
	stopped := s.controller.Stop(ctx)
	if !stopped && wasActive {
		// The remote pipeline may still be running; stay active so a later stop can retry.
		s.startTicker()
		s.mu.Unlock()
		s.logger.Warn().Msg("Pipeline still active after failed stop")
		return false
	}
	if s.State().Alive() {
		s.setState(models.StatePipelineInactive)
	}
	s.mu.Unlock()

	if wasActive && s.metrics != nil {
		s.metrics.ActivePipeline.Dec()
	}
	s.reportProcessingState(ctx, models.ProcessingStateInactive)
	return stopped
}

// DeleteSession tears the device down. Every step runs; failures are joined and logged.
func (s *Session) DeleteSession(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	wasActive := s.State() == models.StatePipelineActive
	s.setState(models.StateDeleting)
	s.stopTicker()

	var errs []error
	if !s.controller.Delete(ctx) {
		errs = append(errs, errors.New("pipeline delete incomplete"))
	}
	client := s.detachClient()
	s.mu.Unlock()

	if err := s.closeClient(ctx, client); err != nil {
		errs = append(errs, fmt.Errorf("close shadow connection: %w", err))
	}
	if wasActive && s.metrics != nil {
		s.metrics.ActivePipeline.Dec()
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error().Err(err).Msg("Device session deleted with errors")
	} else {
		s.logger.Info().Msg("Device session deleted")
	}
	return err
}

// Close stops the inference ticker and closes the shadow connection. The remote
// pipeline is left running so a restarted gateway can pick the device up again.
func (s *Session) Close(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	s.stopTicker()
	client := s.detachClient()
	s.mu.Unlock()

	return s.closeClient(ctx, client)
}

// GetHealth sends a heartbeat and returns the level set by shadow transport callbacks.
func (s *Session) GetHealth(ctx context.Context) models.HealthLevel {
	if s.State().Alive() && s.gate.Opened() {
		s.sendTelemetry(ctx, map[string]any{models.TelemetryHeartbeat: 1})
	}
	return s.Health()
}

func (s *Session) startTicker() {
	ctx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickWG.Add(1)
	go s.runTicker(ctx)
}

// stopTicker must be called with mu held; it returns after the ticker goroutine exits.
func (s *Session) stopTicker() {
	if s.tickCancel == nil {
		return
	}
	s.tickCancel()
	s.tickCancel = nil
	s.tickWG.Wait()
}

func (s *Session) runTicker(ctx context.Context) {
	defer s.tickWG.Done()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Session) tick(ctx context.Context) {
	defer s.recoverHandler("inference ticker")

	timeout := time.Duration(s.settings.Int(settings.KeyInferenceTimeout)) * time.Second
	maxDuration := time.Duration(s.settings.Int(settings.KeyMaxVideoInferenceTime)) * time.Second

	window, ok := s.tracker.Tick(s.clock(), timeout, maxDuration)
	if !ok {
		return
	}
	s.emitVideoLink(ctx, window)
}

// ProcessInference records inferences from the pipeline and relays them upward.
func (s *Session) ProcessInference(ctx context.Context, msg models.InferenceMessage) {
	defer s.recoverHandler("inference")

	if len(msg.Inferences) == 0 {
		return
	}
	now := s.clock()
	var count int64
	for _, inf := range msg.Inferences {
		count = s.tracker.RecordInference(now)
		s.sendTelemetry(ctx, map[string]any{models.TelemetryInference: inf})
	}
	s.sendTelemetry(ctx, map[string]any{models.TelemetryInferenceCount: count})

	if s.metrics != nil {
		s.metrics.Inferences.WithLabelValues(s.info.DeviceID).Add(float64(len(msg.Inferences)))
	}
	if s.settings.Bool(settings.KeyDebugTelemetry) {
		s.logger.Debug().Int("inferences", len(msg.Inferences)).Int64("total", count).Msg("Inference telemetry relayed")
	}
}

// ProcessPipelineEvent counts an operational or diagnostic event under its telemetry field.
func (s *Session) ProcessPipelineEvent(ctx context.Context, ev models.PipelineEvent) {
	defer s.recoverHandler("pipeline event")

	et, ok := models.ParseEventType(ev.EventType)
	if !ok {
		s.logger.Debug().Str("event_type", ev.EventType).Msg("Ignoring unrecognized pipeline event")
		return
	}

	s.countsMu.Lock()
	s.eventCounts[et]++
	n := s.eventCounts[et]
	s.countsMu.Unlock()

	if s.metrics != nil {
		s.metrics.PipelineEvents.WithLabelValues(s.info.DeviceID, et.Field()).Inc()
	}
	s.sendTelemetry(ctx, map[string]any{et.Field(): n})
}

// EventCounts returns pipeline event totals keyed by telemetry field.
func (s *Session) EventCounts() map[string]int64 {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	out := make(map[string]int64, len(s.eventCounts))
	for et, n := range s.eventCounts {
		out[et.Field()] = n
	}
	return out
}

// SendTelemetry relays a telemetry payload on behalf of the gateway.
func (s *Session) SendTelemetry(ctx context.Context, payload map[string]any) error {
	client := s.shadowClient()
	if client == nil {
		return shadow.ErrNotOpen
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return client.SendEvent(ctx, payload)
}

// Describe summarizes the session for the API.
func (s *Session) Describe() models.DeviceResponse {
	return models.DeviceResponse{
		Camera:       s.info.Redacted(),
		State:        s.State(),
		Health:       s.Health(),
		AssetName:    s.controller.AssetName(),
		Settings:     s.settings.Snapshot(),
		CreatedAt:    s.createdAt,
		InferenceCnt: s.tracker.Count(),
	}
}

// LastVideoLink returns the most recent inference video link.
func (s *Session) LastVideoLink() string {
	return s.lastLink.Load().(string)
}

func (s *Session) emitVideoLink(ctx context.Context, w inference.Window) {
	link := s.controller.CreateInferenceVideoLink(s.settings.String(settings.KeyVideoPlaybackHost), w.Start, w.Seconds())
	s.lastLink.Store(link)
	if s.metrics != nil {
		s.metrics.VideoLinks.WithLabelValues(s.info.DeviceID).Inc()
	}
	s.sendTelemetry(ctx, map[string]any{models.TelemetryInferenceVideoLink: link})
	s.updateReported(ctx, map[string]any{models.PropertyLastVideoLink: link})
}

func (s *Session) reportProcessingState(ctx context.Context, state string) {
	s.sendTelemetry(ctx, map[string]any{models.EventProcessingState: state})
	s.updateReported(ctx, map[string]any{models.PropertyProcessingState: state})
}

func (s *Session) sendTelemetry(ctx context.Context, payload map[string]any) {
	if err := s.SendTelemetry(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send telemetry")
	}
}

func (s *Session) updateReported(ctx context.Context, patch map[string]any) {
	client := s.shadowClient()
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := client.UpdateReportedProperties(ctx, patch); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update reported properties")
	}
}

func (s *Session) onShadowError(err error) {
	s.health.Store(int32(models.HealthCritical))
	s.logger.Error().Err(err).Msg("Shadow transport error")
}

func (s *Session) onShadowDisconnect(err error) {
	s.health.CompareAndSwap(int32(models.HealthGood), int32(models.HealthWarning))
	s.logger.Warn().Err(err).Msg("Shadow connection lost")
}

func (s *Session) onShadowConnect() {
	s.health.CompareAndSwap(int32(models.HealthWarning), int32(models.HealthGood))
}

// recoverHandler turns a panic in a callback into Critical health.
func (s *Session) recoverHandler(where string) {
	if r := recover(); r != nil {
		s.health.Store(int32(models.HealthCritical))
		s.logger.Error().Interface("panic", r).Str("handler", where).Msg("Recovered from panic in session handler")
	}
}
