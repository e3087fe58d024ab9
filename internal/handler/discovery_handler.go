// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-dispatch/internal/discovery"
	"device-dispatch/internal/utils"
)

const scanTimeout = 15 * time.Second

// DiscoveryHandler lists attached hardware so it can be added to the device config
type DiscoveryHandler struct {
	scanners *discovery.ScannerManager
	logger   *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanners *discovery.ScannerManager, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanners: scanners,
		logger:   utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	disc := router.Group("/discovery")
	{
		disc.GET("/scan", h.ScanDevices)
		disc.GET("/scanners", h.GetScanners)
	}
}

// ScanDevices runs every scanner, or only ?type=serial|usb
func (h *DiscoveryHandler) ScanDevices(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), scanTimeout)
	defer cancel()

	var (
		devices []*discovery.DiscoveredDevice
		err     error
	)
	scannerType := c.Query("type")
	if scannerType != "" {
		devices, err = h.scanners.ScanByType(ctx, scannerType)
	} else {
		devices, err = h.scanners.ScanAll(ctx)
	}
	if err != nil {
		h.logger.Warn("Device scan failed",
			zap.String("type", scannerType),
			zap.Error(err),
		)
		utils.ErrorResponse(c, http.StatusBadRequest, "Device scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scan completed", gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// GetScanners lists the scanner types usable on this host
func (h *DiscoveryHandler) GetScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", gin.H{
		"scanners": h.scanners.GetAvailableScanners(),
	})
}
