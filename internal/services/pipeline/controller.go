package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vision-gateway-go/internal/config"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/modules"
)

// Pipeline module methods.
const (
	MethodTopologySet        = "pipelineTopologySet"
	MethodTopologyDelete     = "pipelineTopologyDelete"
	MethodLivePipelineSet    = "livePipelineSet"
	MethodLivePipelineAct    = "livePipelineActivate"
	MethodLivePipelineDeact  = "livePipelineDeactivate"
	MethodLivePipelineDelete = "livePipelineDelete"
)

// ONVIF module methods.
const (
	MethodGetRTSPStreamURI = "GetRTSPStreamUri"
	MethodGetSnapshot      = "GetSnapshot"
	MethodReboot           = "Reboot"
)

const assetTimeLayout = "20060102-150405"

// Options are the static settings a controller needs besides its camera.
type Options struct {
	PipelineModuleID string
	OnvifModuleID    string
	APIVersion       string
	ScopeID          string
	ModuleID         string
	GatewayID        string
	CallTimeout      time.Duration
}

// OptionsFromConfig copies controller options out of the gateway config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PipelineModuleID: cfg.PipelineModuleID,
		OnvifModuleID:    cfg.OnvifModuleID,
		APIVersion:       cfg.PipelineAPIVer,
		ScopeID:          cfg.ScopeID,
		ModuleID:         cfg.ModuleID,
		GatewayID:        cfg.GatewayID,
		CallTimeout:      cfg.RemoteCallTimeout,
	}
}

// StartParams are the per-start inputs beyond the device settings.
type StartParams struct {
	MediaProfileToken string
	Parameters        map[string]any
}

// Controller drives one device's pipeline through set, activate, deactivate and delete.
type Controller struct {
	opts    Options
	invoker modules.Invoker
	camera  models.CameraInfo
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	desc      *Descriptor
	active    bool
	assetName string
	streamURL string
}

func NewController(opts Options, invoker modules.Invoker, camera models.CameraInfo, desc *Descriptor, logger zerolog.Logger) *Controller {
	return &Controller{
		opts:    opts,
		invoker: invoker,
		camera:  camera,
		desc:    desc,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for asset names.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Active reports whether the live pipeline was activated and not yet stopped.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// AssetName returns the asset name of the current or most recent start.
func (c *Controller) AssetName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assetName
}

// Start resolves the stream, sets the topology, sets the instance with injected parameters and activates it.
// The first failing step ends the sequence.
func (c *Controller) Start(ctx context.Context, params StartParams) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		c.logger.Warn().Msg("Pipeline already active, start refused")
		return false
	}
	if c.desc == nil {
		c.logger.Error().Msg("Pipeline was deleted, start refused")
		return false
	}

	streamURL, err := c.resolveStream(ctx, params.MediaProfileToken)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to resolve camera stream")
		return false
	}
	c.streamURL = streamURL

	if _, err := c.call(ctx, c.opts.PipelineModuleID, MethodTopologySet, c.request(c.desc.TopologyDocument)); err != nil {
		c.logger.Error().Err(err).Str("topology", c.desc.TopologyName).Msg("Failed to set pipeline topology")
		return false
	}

	asset := c.nextAssetName()
	injected := map[string]any{
		ParamRTSPURL:   streamURL,
		ParamAssetName: asset,
	}
	if c.camera.Username != "" {
		injected[ParamRTSPUserName] = c.camera.Username
	}
	if c.camera.Password != "" {
		injected[ParamRTSPPassword] = c.camera.Password
	}
	for k, v := range params.Parameters {
		injected[k] = v
	}
	for _, name := range c.desc.InjectParameters(injected) {
		c.logger.Warn().Str("parameter", name).Msg("Pipeline parameter has no slot in the live pipeline, ignored")
	}

	if _, err := c.call(ctx, c.opts.PipelineModuleID, MethodLivePipelineSet, c.request(c.desc.InstanceDocument)); err != nil {
		c.logger.Error().Err(err).Str("instance", c.desc.InstanceName).Msg("Failed to set live pipeline")
		return false
	}

	if _, err := c.call(ctx, c.opts.PipelineModuleID, MethodLivePipelineAct, c.nameRequest(c.desc.InstanceName)); err != nil {
		c.logger.Error().Err(err).Str("instance", c.desc.InstanceName).Msg("Failed to activate live pipeline")
		return false
	}

	c.assetName = asset
	c.desc.AssetName = asset
	c.active = true
	c.logger.Info().Str("instance", c.desc.InstanceName).Str("asset", asset).Msg("Live pipeline activated")
	return true
}

// Stop deactivates the live pipeline.
func (c *Controller) Stop(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.desc == nil {
		return false
	}
	if _, err := c.call(ctx, c.opts.PipelineModuleID, MethodLivePipelineDeact, c.nameRequest(c.desc.InstanceName)); err != nil {
		c.logger.Error().Err(err).Str("instance", c.desc.InstanceName).Msg("Failed to deactivate live pipeline")
		return false
	}
	c.active = false
	c.logger.Info().Str("instance", c.desc.InstanceName).Msg("Live pipeline deactivated")
	return true
}

// Delete deactivates and deletes the instance, then deletes the topology. Every step runs.
// Non-2xx statuses are logged; only transport failures make Delete return false.
func (c *Controller) Delete(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.desc == nil {
		return true
	}

	steps := []struct {
		method string
		name   string
	}{
		{MethodLivePipelineDeact, c.desc.InstanceName},
		{MethodLivePipelineDelete, c.desc.InstanceName},
		{MethodTopologyDelete, c.desc.TopologyName},
	}

	var errs []error
	for _, step := range steps {
		_, err := c.call(ctx, c.opts.PipelineModuleID, step.method, c.nameRequest(step.name))
		if err == nil {
			continue
		}
		var opErr *modules.RemoteOperationError
		if errors.As(err, &opErr) && opErr.Err == nil {
			c.logger.Warn().Int("status", opErr.Status).Str("method", step.method).Msg("Pipeline delete step returned an error status")
			continue
		}
		errs = append(errs, err)
	}

	c.active = false
	c.desc = nil
	if err := errors.Join(errs...); err != nil {
		c.logger.Error().Err(err).Msg("Pipeline delete finished with errors")
		return false
	}
	c.logger.Info().Msg("Pipeline deleted")
	return true
}

// CreateInferenceVideoLink returns the playback link for a clip of the current asset.
func (c *Controller) CreateInferenceVideoLink(host string, start time.Time, durationSeconds int) string {
	return VideoLink(host, c.AssetName(), start, durationSeconds)
}

// VideoLink builds <host>/ampplayer?an=<asset>&st=<start>&du=<seconds>. A trailing slash on host is dropped.
func VideoLink(host, asset string, start time.Time, durationSeconds int) string {
	return fmt.Sprintf("%s/ampplayer?an=%s&st=%s&du=%d",
		strings.TrimRight(host, "/"),
		asset,
		start.UTC().Format("2006-01-02T15:04:05Z"),
		durationSeconds,
	)
}

// CaptureSnapshot fetches a JPEG still from the camera's ONVIF media profile.
func (c *Controller) CaptureSnapshot(ctx context.Context, mediaProfileToken string) ([]byte, error) {
	resp, err := c.call(ctx, c.opts.OnvifModuleID, MethodGetSnapshot, c.onvifRequest(mediaProfileToken))
	if err != nil {
		return nil, err
	}
	var image []byte
	if err := resp.Decode(&image); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return image, nil
}

// RestartCamera asks the camera to reboot through the ONVIF module.
func (c *Controller) RestartCamera(ctx context.Context) error {
	_, err := c.call(ctx, c.opts.OnvifModuleID, MethodReboot, c.onvifRequest(""))
	return err
}

func (c *Controller) resolveStream(ctx context.Context, mediaProfileToken string) (string, error) {
	if c.camera.IsRTSP() || mediaProfileToken == "" || c.opts.OnvifModuleID == "" {
		return c.camera.Address, nil
	}

	resp, err := c.call(ctx, c.opts.OnvifModuleID, MethodGetRTSPStreamURI, c.onvifRequest(mediaProfileToken))
	if err != nil {
		return "", err
	}

	var uri string
	if err := json.Unmarshal(resp.Payload, &uri); err != nil {
		var wrapped struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(resp.Payload, &wrapped); err != nil {
			return "", fmt.Errorf("decode stream uri: %w", err)
		}
		uri = wrapped.URI
	}
	if uri == "" {
		return "", errors.New("camera returned an empty stream uri")
	}
	return uri, nil
}

func (c *Controller) call(ctx context.Context, moduleID, method string, request any) (*modules.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return modules.Call(ctx, c.invoker, moduleID, method, request)
}

func (c *Controller) nextAssetName() string {
	name := strings.Join([]string{
		c.opts.ScopeID,
		c.opts.ModuleID,
		c.opts.GatewayID,
		c.camera.DeviceID,
		c.now().UTC().Format(assetTimeLayout),
	}, "-")
	if !strings.HasPrefix(c.assetName, name) {
		return name
	}
	n := 1
	if prev, err := strconv.Atoi(strings.TrimPrefix(c.assetName, name+"-")); err == nil {
		n = prev + 1
	}
	return name + "-" + strconv.Itoa(n)
}

func (c *Controller) request(doc map[string]any) map[string]any {
	req := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		req[k] = v
	}
	req["@apiVersion"] = c.opts.APIVersion
	return req
}

func (c *Controller) nameRequest(name string) map[string]any {
	return map[string]any{"@apiVersion": c.opts.APIVersion, "name": name}
}

func (c *Controller) onvifRequest(mediaProfileToken string) map[string]any {
	req := map[string]any{
		"Address":  c.camera.Address,
		"Username": c.camera.Username,
		"Password": c.camera.Password,
	}
	if mediaProfileToken != "" {
		req["MediaProfileToken"] = mediaProfileToken
	}
	return req
}
