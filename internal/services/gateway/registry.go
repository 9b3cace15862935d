package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vision-gateway-go/internal/metrics"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/blobstore"
	"vision-gateway-go/internal/services/camera"
	"vision-gateway-go/internal/services/modules"
	"vision-gateway-go/internal/services/pipeline"
	"vision-gateway-go/internal/services/provisioning"
	"vision-gateway-go/internal/services/shadow"
)

// ErrDeviceNotFound is returned for operations on an unknown device id.
var ErrDeviceNotFound = errors.New("device not found")

// FailureReason says which createDevice step failed.
type FailureReason string

const (
	FailureInvalidCamera FailureReason = "invalid_camera"
	FailureAlreadyExists FailureReason = "already_exists"
	FailureProvisioning  FailureReason = "provisioning_failed"
	FailureDescriptor    FailureReason = "descriptor_failed"
	FailureSession       FailureReason = "session_failed"
	FailureConnection    FailureReason = "connection_failed"
)

// ProvisionResult is the outcome of CreateDevice. Reason is empty on success.
type ProvisionResult struct {
	DeviceID string        `json:"deviceId"`
	Success  bool          `json:"success"`
	Reason   FailureReason `json:"reason,omitempty"`
	Message  string        `json:"message"`
	Err      error         `json:"-"`
}

func failed(id string, reason FailureReason, err error) ProvisionResult {
	return ProvisionResult{DeviceID: id, Reason: reason, Message: err.Error(), Err: err}
}

// Deps are the collaborators shared by every session the registry builds.
type Deps struct {
	Provisioner provisioning.Service
	Blobs       blobstore.Lookup
	Invoker     modules.Invoker
	Factory     shadow.Factory
	Metrics     *metrics.Registry
	Logger      zerolog.Logger
	Clock       func() time.Time

	GroupKey string
	Pipeline pipeline.Options
	Session  camera.Options
}

// Registry owns the camera device sessions of one gateway.
type Registry struct {
	deps   Deps
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*camera.Session
	pending  map[string]struct{}
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "registry").Logger(),
		sessions: make(map[string]*camera.Session),
		pending:  make(map[string]struct{}),
	}
}

// CreateDevice provisions, builds and connects a session for info. The session is
// registered only when every step succeeds.
func (r *Registry) CreateDevice(ctx context.Context, info models.CameraInfo) ProvisionResult {
	id := info.DeviceID
	if err := info.Validate(); err != nil {
		return failed(id, FailureInvalidCamera, err)
	}
	if err := r.reserve(id); err != nil {
		return failed(id, FailureAlreadyExists, err)
	}
	defer r.release(id)

	logger := r.logger.With().Str("device_id", id).Logger()
	logger.Info().Str("model", info.ModelID).Msg("Creating device")

	key := provisioning.DeriveDeviceKey(r.deps.GroupKey, id)
	desc, err := r.deps.Provisioner.Register(ctx, id, key, map[string]any{
		"modelId":   info.ModelID,
		"gatewayId": r.deps.Pipeline.GatewayID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Device provisioning failed")
		return failed(id, FailureProvisioning, err)
	}
	if desc.DeviceID == "" {
		desc.DeviceID = id
	}
	desc.DeviceKey = key

	pdesc, err := pipeline.LoadDescriptor(ctx, r.deps.Blobs, info)
	if err != nil {
		logger.Error().Err(err).Msg("Pipeline descriptor could not be loaded")
		r.rollbackIdentity(ctx, id, logger)
		return failed(id, FailureDescriptor, err)
	}

	session, err := camera.NewSession(info, camera.Deps{
		Invoker:    r.deps.Invoker,
		Factory:    r.deps.Factory,
		Pipeline:   r.deps.Pipeline,
		Descriptor: pdesc,
		Metrics:    r.deps.Metrics,
		Logger:     r.deps.Logger,
		Clock:      r.deps.Clock,
		Options:    r.deps.Session,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Session could not be built")
		r.rollbackIdentity(ctx, id, logger)
		return failed(id, FailureSession, err)
	}

	if res := session.Connect(ctx, *desc); res.Status != camera.ConnectConnected {
		err := res.Err
		if err == nil {
			err = errors.New(res.Message)
		}
		r.rollbackIdentity(ctx, id, logger)
		return failed(id, FailureConnection, err)
	}

	r.mu.Lock()
	r.sessions[id] = session
	count := len(r.sessions)
	r.mu.Unlock()

	if r.deps.Metrics != nil {
		r.deps.Metrics.Devices.Set(float64(count))
	}
	logger.Info().Str("hub", desc.AssignedHub).Msg("Device created")
	return ProvisionResult{DeviceID: id, Success: true, Message: "device created"}
}

// reserve claims id for a creation in progress. A live or deleting session, or
// another creation or deprovision in flight for the same id makes it fail.
func (r *Registry) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return errors.New("device " + id + " is already being created or deleted")
	}
	if s, ok := r.sessions[id]; ok {
		if st := s.State(); st.Alive() || st == models.StateDeleting {
			return errors.New("device " + id + " already exists")
		}
		delete(r.sessions, id)
	}
	r.pending[id] = struct{}{}
	return nil
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// rollbackIdentity removes an identity registered by a creation that failed later on.
func (r *Registry) rollbackIdentity(ctx context.Context, id string, logger zerolog.Logger) {
	if err := r.deps.Provisioner.DeleteIdentity(ctx, id); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove identity of device that was not created")
	}
}

// Deprovision deletes the session, removes the device identity and then drops the
// session from the registry. The id stays reserved until teardown has finished, so
// a new device with the same id cannot be created against resources still being removed.
func (r *Registry) Deprovision(ctx context.Context, id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	_, busy := r.pending[id]
	if ok && !busy {
		r.pending[id] = struct{}{}
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn().Str("device_id", id).Msg("Deprovision requested for unknown device")
		return false
	}
	if busy {
		r.logger.Warn().Str("device_id", id).Msg("Device is already being deprovisioned")
		return false
	}

	if err := session.DeleteSession(ctx); err != nil {
		r.logger.Warn().Err(err).Str("device_id", id).Msg("Session teardown incomplete, removing identity anyway")
	}
	if err := r.deps.Provisioner.DeleteIdentity(ctx, id); err != nil {
		r.logger.Error().Err(err).Str("device_id", id).Msg("Failed to delete device identity")
	}

	r.mu.Lock()
	if r.sessions[id] == session {
		delete(r.sessions, id)
	}
	delete(r.pending, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if r.deps.Metrics != nil {
		r.deps.Metrics.Devices.Set(float64(count))
		r.deps.Metrics.ForgetDevice(id)
	}
	r.logger.Info().Str("device_id", id).Msg("Device deprovisioned")
	return true
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*camera.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns every session ordered by device id.
func (r *Registry) List() []*camera.Session {
	r.mu.RLock()
	out := make([]*camera.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID() < out[j].DeviceID() })
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CheckHealth asks every session for its health and returns the worst level with
// the per-device breakdown.
func (r *Registry) CheckHealth(ctx context.Context) (models.HealthLevel, map[string]models.HealthLevel) {
	sessions := r.List()
	levels := make(map[string]models.HealthLevel, len(sessions))
	worst := models.HealthGood
	for _, s := range sessions {
		level := s.GetHealth(ctx)
		levels[s.DeviceID()] = level
		worst = models.Worst(worst, level)
	}
	return worst, levels
}

// SendTelemetry relays telemetry through a device's shadow connection.
func (r *Registry) SendTelemetry(ctx context.Context, id string, payload map[string]any) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrDeviceNotFound
	}
	return s.SendTelemetry(ctx, payload)
}

// Shutdown stops every session's ticker and closes its shadow connection.
// Remote pipelines are left running.
func (r *Registry) Shutdown(ctx context.Context) error {
	sessions := r.List()
	r.logger.Info().Int("devices", len(sessions)).Msg("Draining device sessions")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *camera.Session) {
			defer wg.Done()
			if err := s.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
