// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-dispatch/internal/config"
	"device-dispatch/internal/queue"
	"device-dispatch/internal/transport"
	"device-dispatch/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	config     *config.Config
	queue      *queue.Queue
	transports *transport.Registry
	startedAt  time.Time
	ready      atomic.Bool
	logger     *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(config *config.Config, q *queue.Queue, transports *transport.Registry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		config:     config,
		queue:      q,
		transports: transports,
		startedAt:  time.Now(),
		logger:     utils.NewServiceLogger(logger, "health-handler"),
	}
}

// SetReady flips the readiness probe. The application marks itself ready
// once the dispatcher is running.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports queue depth and per-device transport state
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	stats := h.queue.Statistics()
	health.Checks["queue"] = CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"queued":   stats.QueuedCount,
			"max_size": h.config.Queue.MaxSize,
		},
	}
	if h.config.Queue.MaxSize > 0 && stats.QueuedCount >= h.config.Queue.MaxSize {
		health.Status = "degraded"
		health.Checks["queue"] = CheckResult{
			Status:  "degraded",
			Message: "queue is full, only emergency commands are accepted",
			Data:    health.Checks["queue"].Data,
		}
	}

	devices := h.transports.Devices()
	failing := 0
	transportData := make(map[string]interface{}, len(devices))
	for _, device := range devices {
		s, _ := h.transports.Stats(device.ID)
		transportData[device.ID] = map[string]interface{}{
			"type":        device.ConnectionType,
			"connected":   s.IsConnected,
			"frames_sent": s.FramesSent,
			"errors":      s.ErrorCount,
		}
		if s.ErrorCount > 0 && s.FramesSent == 0 {
			failing++
		}
	}
	transportCheck := CheckResult{Status: "healthy", Data: transportData}
	if failing > 0 {
		transportCheck.Status = "degraded"
		transportCheck.Message = "some devices have never accepted a frame"
		health.Status = "degraded"
	}
	health.Checks["transports"] = transportCheck

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck for Kubernetes readiness probe
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "dispatcher not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
