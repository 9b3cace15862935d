package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vision-gateway-go/internal/api"
	"vision-gateway-go/internal/config"
	"vision-gateway-go/internal/logging"
	"vision-gateway-go/internal/metrics"
	"vision-gateway-go/internal/services/blobstore"
	"vision-gateway-go/internal/services/camera"
	"vision-gateway-go/internal/services/gateway"
	"vision-gateway-go/internal/services/messaging"
	"vision-gateway-go/internal/services/modules"
	"vision-gateway-go/internal/services/pipeline"
	"vision-gateway-go/internal/services/provisioning"
	"vision-gateway-go/internal/services/shadow"
	"vision-gateway-go/pkg/logger"
)

// App is a fully wired gateway process.
type App struct {
	cfg      *config.Config
	msg      *messaging.Service
	invoker  modules.Invoker
	closers  []io.Closer
	registry *gateway.Registry
	monitor  *gateway.HealthMonitor
	self     shadow.Client
	server   *api.Server
	unlisten func()
}

// setupLogging configures zerolog from cfg, teeing into Logdy when enabled.
func setupLogging(cfg *config.Config) {
	opts := logger.Options{Level: cfg.LogLevel, Console: cfg.Environment == "development"}
	var (
		logdyURL string
		logdyErr error
	)
	if cfg.LogdyEnabled {
		var w io.Writer
		if w, logdyURL, logdyErr = logging.StartLogdy(cfg); logdyErr == nil {
			opts.Extra = append(opts.Extra, w)
		}
	}
	logger.Setup(opts)

	l := logging.NewServiceLogger(cfg, "logging")
	switch {
	case logdyErr != nil:
		l.Warn().Err(logdyErr).Msg("Logdy UI could not be started")
	case logdyURL != "":
		l.Info().Str("url", logdyURL).Msg("Logdy UI available")
	}
}

// NewApp connects to NATS and the remote services and builds the registry, health
// monitor and API server.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	msg, err := messaging.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect messaging: %w", err)
	}
	a.msg = msg

	if err := a.wire(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg
	baseLogger := logging.NewServiceLogger(cfg, "gateway")

	switch cfg.ModuleTransport {
	case "grpc":
		inv, err := modules.NewGRPCInvoker(cfg.ModuleGRPCURL)
		if err != nil {
			return fmt.Errorf("module client: %w", err)
		}
		hctx, cancel := context.WithTimeout(ctx, cfg.RemoteCallTimeout)
		if !inv.Healthy(hctx) {
			baseLogger.Warn().Str("endpoint", cfg.ModuleGRPCURL).Msg("Module endpoint not healthy yet")
		}
		cancel()
		a.invoker = inv
		a.closers = append(a.closers, inv)
	default:
		a.invoker = modules.NewNatsInvoker(a.msg, cfg.SubjectPrefix)
	}

	kv, err := shadow.OpenBucket(ctx, a.msg.JetStream(), cfg.ShadowBucket)
	if err != nil {
		return fmt.Errorf("open shadow bucket: %w", err)
	}
	factory := shadow.NewNatsFactory(cfg, a.msg, kv)

	m := metrics.New()
	a.registry = gateway.NewRegistry(gateway.Deps{
		Provisioner: provisioning.NewHTTPService(cfg.ProvisioningURL, cfg.RemoteCallTimeout),
		Blobs:       blobstore.NewHTTPLookup(cfg.BlobURL, cfg.RemoteCallTimeout),
		Invoker:     a.invoker,
		Factory:     factory,
		Metrics:     m,
		Logger:      baseLogger,
		GroupKey:    cfg.ProvisioningGroupKey,
		Pipeline:    pipeline.OptionsFromConfig(cfg),
		Session: camera.Options{
			CallTimeout:        cfg.RemoteCallTimeout,
			ThumbnailMaxWidth:  cfg.ThumbnailMaxWidth,
			ThumbnailMaxHeight: cfg.ThumbnailMaxHeight,
			ThumbnailQuality:   cfg.ThumbnailQuality,
		},
	})

	// The gateway reports its own telemetry through a shadow of its own.
	self, err := factory(provisioning.ConnectionDescriptor{DeviceID: cfg.GatewayID})
	if err != nil {
		return fmt.Errorf("gateway shadow: %w", err)
	}
	octx, cancel := context.WithTimeout(ctx, cfg.RemoteCallTimeout)
	err = self.Open(octx)
	cancel()
	if err != nil {
		return fmt.Errorf("open gateway shadow: %w", err)
	}
	a.self = self

	a.monitor = gateway.NewHealthMonitor(a.registry, self, m, gateway.HealthOptions{
		Interval:     cfg.HealthCheckInterval,
		Threshold:    cfg.HealthRetryThreshold,
		RestartDelay: cfg.RestartDelay,
	}, baseLogger)

	unlisten, err := a.registry.Listen(a.msg, cfg.SubjectPrefix, cfg.RemoteCallTimeout*4)
	if err != nil {
		return fmt.Errorf("subscribe inputs: %w", err)
	}
	a.unlisten = unlisten

	a.server = api.NewServer(cfg, a.registry, a.monitor, m)
	return nil
}

// Run serves the API and runs the health monitor until ctx is done, then shuts down.
func (a *App) Run(ctx context.Context) error {
	log.Info().
		Str("gateway_id", a.cfg.GatewayID).
		Str("version", a.cfg.Version).
		Str("environment", a.cfg.Environment).
		Str("module_transport", a.cfg.ModuleTransport).
		Int("port", a.cfg.Port).
		Msg("Starting vision gateway")

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Start() }()

	var wg sync.WaitGroup
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(monitorCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("API server failed")
		}
	}
	stopMonitor()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	a.close(shutdownCtx)
	log.Info().Msg("Gateway shutdown complete")
	return runErr
}

func (a *App) close(ctx context.Context) {
	if a.unlisten != nil {
		a.unlisten()
	}
	if a.registry != nil {
		if err := a.registry.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Device sessions did not close cleanly")
		}
	}
	if a.self != nil {
		if err := a.self.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Gateway shadow did not close cleanly")
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing module client")
		}
	}
	if a.msg != nil {
		drainCtx, cancel := context.WithTimeout(ctx, a.cfg.NatsDrainTimeout)
		defer cancel()
		if err := a.msg.Shutdown(drainCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Msg("NATS drain failed")
		}
	}
}

// runGateway loads config, builds the app and runs it until ctx is done.
func runGateway(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg)

	startCtx, cancel := context.WithTimeout(ctx, cfg.NatsConnectTimeout+cfg.RemoteCallTimeout+5*time.Second)
	app, err := NewApp(startCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
