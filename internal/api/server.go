package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vision-gateway-go/internal/api/handlers"
	"vision-gateway-go/internal/config"
	"vision-gateway-go/internal/metrics"
	"vision-gateway-go/internal/services/gateway"
)

type Server struct {
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	metrics *metrics.Registry

	healthHandler  *handlers.HealthHandler
	deviceHandler  *handlers.DeviceHandler
	gatewayHandler *handlers.GatewayHandler
	systemHandler  *handlers.SystemHandler
}

func NewServer(cfg *config.Config, registry *gateway.Registry, monitor *gateway.HealthMonitor, m *metrics.Registry) *Server {
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:         cfg,
		router:         gin.New(),
		metrics:        m,
		healthHandler:  handlers.NewHealthHandler(cfg, registry, monitor),
		deviceHandler:  handlers.NewDeviceHandler(registry),
		gatewayHandler: handlers.NewGatewayHandler(monitor),
		systemHandler:  handlers.NewSystemHandler(cfg.GatewayID, registry),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting gateway API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping gateway API")
	return s.server.Shutdown(ctx)
}
