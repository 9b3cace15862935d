package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vision-gateway-go/internal/logging"
	"vision-gateway-go/internal/services/gateway"
)

type RestartRequest struct {
	Reason string `json:"reason" example:"operator request"`
}

type GatewayHandler struct {
	monitor *gateway.HealthMonitor
}

func NewGatewayHandler(monitor *gateway.HealthMonitor) *GatewayHandler {
	return &GatewayHandler{monitor: monitor}
}

// Restart schedules a gateway restart
// @Summary Restart the gateway
// @Description Emit the restart event and exit after the configured delay; the service manager starts the gateway again
// @Tags gateway
// @Accept json
// @Produce json
// @Param request body RestartRequest false "Restart reason"
// @Success 202 {object} SuccessResponse
// @Router /gateway/restart [post]
func (h *GatewayHandler) Restart(c *gin.Context) {
	var req RestartRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "restart requested over API"
	}

	logging.Warn(c).Str("reason", req.Reason).Msg("Gateway restart requested")
	go h.monitor.Restart(context.Background(), req.Reason)
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "gateway restart scheduled"})
}

// Counters returns the health monitor counters
// @Summary Health monitor counters
// @Tags gateway
// @Produce json
// @Success 200 {object} gateway.Counters
// @Router /gateway/health [get]
func (h *GatewayHandler) Counters(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Counters())
}
