package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vision-gateway-go/internal/logging"
	"vision-gateway-go/internal/models"
	"vision-gateway-go/internal/services/gateway"
)

type ErrorResponse struct {
	Error  string `json:"error" example:"device not found"`
	Reason string `json:"reason,omitempty" example:"already_exists"`
}

type SuccessResponse struct {
	Message string `json:"message" example:"device deleted"`
}

type DeviceListResponse struct {
	Devices []models.DeviceResponse `json:"devices"`
	Count   int                     `json:"count"`
}

type TelemetryRequest struct {
	Telemetry map[string]any `json:"telemetry" binding:"required"`
}

type DeviceHandler struct {
	registry *gateway.Registry
}

func NewDeviceHandler(registry *gateway.Registry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// CreateDevice provisions and connects a camera device
// @Summary Create a camera device
// @Description Provision a camera, connect its shadow and register it with the gateway
// @Tags devices
// @Accept json
// @Produce json
// @Param request body models.CameraInfo true "Camera description"
// @Success 201 {object} models.DeviceResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /devices [post]
func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	var info models.CameraInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		logging.Warn(c).Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	logging.SetDevice(c, info.DeviceID)

	res := h.registry.CreateDevice(c.Request.Context(), info)
	if !res.Success {
		logging.Error(c).Err(res.Err).Str("reason", string(res.Reason)).Msg("Failed to create device")
		c.JSON(failureStatus(res.Reason), ErrorResponse{Error: res.Message, Reason: string(res.Reason)})
		return
	}

	session, ok := h.registry.Get(info.DeviceID)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "device created but not registered"})
		return
	}
	logging.Info(c).Str("model", info.ModelID).Msg("Device created")
	c.JSON(http.StatusCreated, session.Describe())
}

func failureStatus(reason gateway.FailureReason) int {
	switch reason {
	case gateway.FailureInvalidCamera, gateway.FailureDescriptor:
		return http.StatusBadRequest
	case gateway.FailureAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// ListDevices lists all devices
// @Summary List devices
// @Description All registered camera devices with state and health
// @Tags devices
// @Produce json
// @Success 200 {object} DeviceListResponse
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	sessions := h.registry.List()
	out := make([]models.DeviceResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Describe())
	}
	c.JSON(http.StatusOK, DeviceListResponse{Devices: out, Count: len(out)})
}

// GetDevice gets device details
// @Summary Get a device
// @Tags devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} models.DeviceResponse
// @Failure 404 {object} ErrorResponse
// @Router /devices/{device_id} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	session, ok := h.registry.Get(c.Param("device_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: gateway.ErrDeviceNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, session.Describe())
}

// DeleteDevice deprovisions a device
// @Summary Delete a device
// @Description Tear down the pipeline, close the shadow and remove the device identity
// @Tags devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /devices/{device_id} [delete]
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	id := c.Param("device_id")
	logging.SetDevice(c, id)

	if !h.registry.Deprovision(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: gateway.ErrDeviceNotFound.Error()})
		return
	}
	logging.Info(c).Msg("Device deleted")
	c.JSON(http.StatusOK, SuccessResponse{Message: "device deleted"})
}

// InvokeCommand runs a device command
// @Summary Invoke a device command
// @Description Run startProcessing, stopProcessing, captureImage or restartCamera on a device
// @Tags devices
// @Accept json
// @Produce json
// @Param device_id path string true "Device ID"
// @Param command path string true "Command name"
// @Param payload body map[string]interface{} false "Command parameters"
// @Success 200 {object} models.CommandResponse
// @Failure 400 {object} models.CommandResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} models.CommandResponse
// @Router /devices/{device_id}/commands/{command} [post]
func (h *DeviceHandler) InvokeCommand(c *gin.Context) {
	id := c.Param("device_id")
	logging.SetDevice(c, id)

	session, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: gateway.ErrDeviceNotFound.Error()})
		return
	}

	var payload map[string]any
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	resp := session.Invoke(c.Request.Context(), models.CommandRequest{Name: c.Param("command"), Payload: payload})
	c.JSON(resp.StatusCode, resp)
}

// GetSettings returns a device's current settings
// @Summary Get device settings
// @Tags devices
// @Produce json
// @Param device_id path string true "Device ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /devices/{device_id}/settings [get]
func (h *DeviceHandler) GetSettings(c *gin.Context) {
	session, ok := h.registry.Get(c.Param("device_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: gateway.ErrDeviceNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, session.Settings())
}

// SendTelemetry relays telemetry for a device
// @Summary Send device telemetry
// @Tags devices
// @Accept json
// @Produce json
// @Param device_id path string true "Device ID"
// @Param request body TelemetryRequest true "Telemetry fields"
// @Success 202 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /devices/{device_id}/telemetry [post]
func (h *DeviceHandler) SendTelemetry(c *gin.Context) {
	id := c.Param("device_id")
	var req TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	err := h.registry.SendTelemetry(c.Request.Context(), id, req.Telemetry)
	switch {
	case errors.Is(err, gateway.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case err != nil:
		logging.Error(c).Err(err).Str("device_id", id).Msg("Failed to relay telemetry")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusAccepted, SuccessResponse{Message: "telemetry sent"})
	}
}
