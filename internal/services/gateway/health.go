package gateway

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"vision-gateway-go/internal/metrics"
	"vision-gateway-go/internal/models"
)

// EventSink receives gateway-level telemetry. The gateway's own shadow client is one.
type EventSink interface {
	SendEvent(ctx context.Context, payload map[string]any) error
}

// Counters is a snapshot of the health monitor's bookkeeping.
type Counters struct {
	FailureStreak int                           `json:"failureStreak"`
	FreeMemory    uint64                        `json:"freeMemory"`
	Devices       int                           `json:"devices"`
	LastLevel     models.HealthLevel            `json:"lastLevel"`
	LastCheck     time.Time                     `json:"lastCheck"`
	DeviceHealth  map[string]models.HealthLevel `json:"deviceHealth,omitempty"`
}

// HealthOptions configure a HealthMonitor. Zero funcs fall back to the real ones.
type HealthOptions struct {
	Interval     time.Duration
	Threshold    int
	RestartDelay time.Duration

	SampleMemory func(ctx context.Context) (uint64, error)
	Exit         func(code int)
	Clock        func() time.Time
}

// HealthMonitor checks the fleet periodically and restarts the process after
// Threshold consecutive critical checks.
type HealthMonitor struct {
	registry *Registry
	sink     EventSink
	metrics  *metrics.Registry
	opts     HealthOptions
	logger   zerolog.Logger

	mu         sync.Mutex
	counters   Counters
	restarting bool
}

func NewHealthMonitor(registry *Registry, sink EventSink, m *metrics.Registry, opts HealthOptions, logger zerolog.Logger) *HealthMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.SampleMemory == nil {
		opts.SampleMemory = availableMemory
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &HealthMonitor{
		registry: registry,
		sink:     sink,
		metrics:  m,
		opts:     opts,
		logger:   logger.With().Str("component", "health").Logger(),
	}
}

func availableMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Run checks health every Interval until ctx is done.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.Interval)
	defer ticker.Stop()

	h.logger.Info().Dur("interval", h.opts.Interval).Int("threshold", h.opts.Threshold).Msg("Health monitor started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("Health monitor stopped")
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check runs one health check and returns the worst device level.
func (h *HealthMonitor) Check(ctx context.Context) models.HealthLevel {
	level, devices := h.registry.CheckHealth(ctx)
	count := len(devices)

	if h.metrics != nil {
		h.metrics.HealthChecks.WithLabelValues(level.String()).Inc()
	}

	if level == models.HealthCritical {
		h.mu.Lock()
		h.counters.FailureStreak++
		streak := h.counters.FailureStreak
		h.counters.LastLevel = level
		h.counters.LastCheck = h.opts.Clock()
		h.counters.DeviceHealth = devices
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.FailureStreak.Set(float64(streak))
		}
		h.logger.Warn().Int("streak", streak).Int("threshold", h.opts.Threshold).Msg("Health check critical")
		if streak >= h.opts.Threshold {
			h.Restart(ctx, "health check failed")
		}
		return level
	}

	free, err := h.opts.SampleMemory(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Free memory sample failed")
	}

	h.mu.Lock()
	h.counters = Counters{
		FreeMemory:   free,
		Devices:      count,
		LastLevel:    level,
		LastCheck:    h.opts.Clock(),
		DeviceHealth: devices,
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.FailureStreak.Set(0)
		h.metrics.FreeMemory.Set(float64(free))
		h.metrics.Devices.Set(float64(count))
	}
	h.emit(ctx, map[string]any{
		models.TelemetryFreeMemory:       free,
		models.TelemetryConnectedCameras: count,
	})
	return level
}

// Counters returns a copy of the current counters.
func (h *HealthMonitor) Counters() Counters {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.counters
	if c.DeviceHealth != nil {
		c.DeviceHealth = make(map[string]models.HealthLevel, len(h.counters.DeviceHealth))
		for k, v := range h.counters.DeviceHealth {
			c.DeviceHealth[k] = v
		}
	}
	return c
}

// Restart emits the restart event, waits RestartDelay and exits the process.
// Only the first call has any effect.
func (h *HealthMonitor) Restart(ctx context.Context, reason string) {
	h.mu.Lock()
	if h.restarting {
		h.mu.Unlock()
		return
	}
	h.restarting = true
	h.mu.Unlock()

	h.logger.Error().Str("reason", reason).Dur("delay", h.opts.RestartDelay).Msg("Restarting gateway")
	h.emit(ctx, map[string]any{models.EventGatewayRestart: reason})

	if h.opts.RestartDelay > 0 {
		timer := time.NewTimer(h.opts.RestartDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	h.opts.Exit(1)
}

func (h *HealthMonitor) emit(ctx context.Context, payload map[string]any) {
	if h.sink == nil {
		return
	}
	if err := h.sink.SendEvent(ctx, payload); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send gateway telemetry")
	}
}
