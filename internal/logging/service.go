package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vision-gateway-go/internal/config"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("gateway_id", cfg.GatewayID).Str("service", service).Logger()
}

func WithDevice(base zerolog.Logger, deviceID string) zerolog.Logger {
	return base.With().Str("device_id", deviceID).Logger()
}
