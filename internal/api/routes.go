package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.GatewayInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	devices := s.router.Group("/devices")
	{
		devices.GET("", s.deviceHandler.ListDevices)
		devices.POST("", s.deviceHandler.CreateDevice)
		devices.GET("/:device_id", s.deviceHandler.GetDevice)
		devices.DELETE("/:device_id", s.deviceHandler.DeleteDevice)
		devices.GET("/:device_id/settings", s.deviceHandler.GetSettings)
		devices.POST("/:device_id/telemetry", s.deviceHandler.SendTelemetry)
		devices.POST("/:device_id/commands/:command", s.deviceHandler.InvokeCommand)
	}

	gw := s.router.Group("/gateway")
	{
		gw.GET("/health", s.gatewayHandler.Counters)
		gw.POST("/restart", s.gatewayHandler.Restart)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
