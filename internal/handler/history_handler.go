// internal/handler/history_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-dispatch/internal/history"
	"device-dispatch/internal/utils"
)

const defaultRecentLimit = 50

// HistoryHandler exposes the command history
type HistoryHandler struct {
	history *history.History
	audit   *utils.AuditLogger
	logger  *utils.ServiceLogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(h *history.History, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: h,
		audit:   utils.NewAuditLogger(logger),
		logger:  utils.NewServiceLogger(logger, "history-handler"),
	}
}

// RegisterRoutes registers history routes
func (h *HistoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/devices/:device_id/history", h.GetDeviceHistory)
	router.DELETE("/devices/:device_id/history", h.ClearDeviceHistory)

	hist := router.Group("/history")
	{
		hist.GET("/stats", h.GetStatistics)
		hist.GET("/recent", h.GetRecent)
	}
}

// GetDeviceHistory returns the retained commands of a device, newest first
func (h *HistoryHandler) GetDeviceHistory(c *gin.Context) {
	deviceID := c.Param("device_id")
	limit, err := parseLimit(c, 0)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	entries := h.history.History(deviceID)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	utils.SuccessResponse(c, http.StatusOK, "Device history retrieved", gin.H{
		"device_id": deviceID,
		"count":     len(entries),
		"commands":  entries,
	})
}

// ClearDeviceHistory empties the history of one device
func (h *HistoryHandler) ClearDeviceHistory(c *gin.Context) {
	deviceID := c.Param("device_id")
	h.history.Clear(deviceID)
	h.audit.LogHistoryCleared(deviceID, c.ClientIP())

	utils.SuccessResponse(c, http.StatusOK, "Device history cleared", gin.H{"device_id": deviceID})
}

// GetStatistics aggregates the global history
func (h *HistoryHandler) GetStatistics(c *gin.Context) {
	perDevice, global := h.history.Capacities()
	utils.SuccessResponse(c, http.StatusOK, "History statistics retrieved", gin.H{
		"statistics":          h.history.Statistics(),
		"per_device_capacity": perDevice,
		"global_capacity":     global,
	})
}

// GetRecent returns the most recent commands across all devices
func (h *HistoryHandler) GetRecent(c *gin.Context) {
	limit, err := parseLimit(c, defaultRecentLimit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	entries := h.history.Recent(limit)
	utils.SuccessResponse(c, http.StatusOK, "Recent commands retrieved", gin.H{
		"count":    len(entries),
		"commands": entries,
	})
}

func parseLimit(c *gin.Context, fallback int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, strconv.ErrRange
	}
	return limit, nil
}
