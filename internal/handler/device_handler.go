// internal/handler/device_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
	"device-dispatch/internal/transport"
	"device-dispatch/internal/utils"
)

// DeviceStatus is a configured device with its transport counters
type DeviceStatus struct {
	model.Device
	Transport transport.Stats `json:"transport"`
}

// DeviceHandler exposes the configured devices
type DeviceHandler struct {
	transports *transport.Registry
	logger     *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(transports *transport.Registry, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		transports: transports,
		logger:     utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)
		devices.GET("/:device_id", h.GetDevice)
	}
}

// ListDevices lists configured devices sorted by id
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.transports.Devices()
	statuses := make([]DeviceStatus, 0, len(devices))
	for _, device := range devices {
		stats, _ := h.transports.Stats(device.ID)
		statuses = append(statuses, DeviceStatus{Device: redact(device), Transport: stats})
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved", gin.H{
		"devices": statuses,
		"count":   len(statuses),
	})
}

// GetDevice returns one configured device
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	deviceID := c.Param("device_id")
	device, ok := h.transports.Device(deviceID)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", model.ErrUnknownDevice)
		return
	}

	stats, _ := h.transports.Stats(deviceID)
	utils.SuccessResponse(c, http.StatusOK, "Device retrieved", DeviceStatus{Device: redact(device), Transport: stats})
}

// redact drops credentials from transport options
func redact(device model.Device) model.Device {
	if _, ok := device.Options["password"]; !ok {
		return device
	}
	device.Options = device.Options.Clone()
	device.Options["password"] = "***"
	return device
}
