package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"vision-gateway-go/internal/logging"
	"vision-gateway-go/internal/services/gateway"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	GatewayID string
	registry  *gateway.Registry
	started   time.Time
}

func NewSystemHandler(gatewayID string, registry *gateway.Registry) *SystemHandler {
	return &SystemHandler{
		GatewayID: gatewayID,
		registry:  registry,
		started:   time.Now(),
	}
}

// @Summary Get system stats
// @Description Host memory, runtime and device statistics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"gateway_id":     h.GatewayID,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"heap_mb":        m.Alloc / 1024 / 1024,
		"cpu_cores":      runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
		"devices":        h.registry.Count(),
	}
	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err != nil {
		logging.Warn(c).Err(err).Msg("Host memory stats unavailable")
	} else {
		stats["memory_total_bytes"] = vm.Total
		stats["memory_available_bytes"] = vm.Available
		stats["memory_used_percent"] = vm.UsedPercent
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}
