package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vision-gateway-go/internal/config"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/gateway"
)

type HealthHandler struct {
	cfg      *config.Config
	registry *gateway.Registry
	monitor  *gateway.HealthMonitor
}

func NewHealthHandler(cfg *config.Config, registry *gateway.Registry, monitor *gateway.HealthMonitor) *HealthHandler {
	return &HealthHandler{cfg: cfg, registry: registry, monitor: monitor}
}

type HealthResponse struct {
	Status    string                        `json:"status" example:"good"`
	GatewayID string                        `json:"gateway_id" example:"gateway-1"`
	Devices   int                           `json:"devices" example:"3"`
	Device    map[string]models.HealthLevel `json:"device_health,omitempty"`
	Counters  *gateway.Counters             `json:"counters,omitempty"`
}

type GatewayInfoResponse struct {
	GatewayID    string   `json:"gateway_id" example:"gateway-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Environment  string   `json:"environment" example:"production"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Aggregated health of every camera device session. Responds 503 when any device is critical.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	level, devices := h.registry.CheckHealth(c.Request.Context())
	resp := HealthResponse{
		Status:    level.String(),
		GatewayID: h.cfg.GatewayID,
		Devices:   len(devices),
		Device:    devices,
	}
	if h.monitor != nil {
		counters := h.monitor.Counters()
		resp.Counters = &counters
	}

	status := http.StatusOK
	if level == models.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// @Summary Gateway information
// @Description Basic gateway information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} GatewayInfoResponse
// @Router / [get]
func (h *HealthHandler) GatewayInfo(c *gin.Context) {
	c.JSON(http.StatusOK, GatewayInfoResponse{
		GatewayID:   h.cfg.GatewayID,
		Status:      "running",
		Version:     h.cfg.Version,
		Environment: h.cfg.Environment,
		Capabilities: []string{
			models.ModelMotionDetection,
			models.ModelObjectDetection,
		},
	})
}
