// internal/handler/command_handler.go
package handler

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"device-dispatch/internal/clock"
	"device-dispatch/internal/dispatcher"
	"device-dispatch/internal/model"
	"device-dispatch/internal/queue"
	"device-dispatch/internal/serializer"
	"device-dispatch/internal/transport"
	"device-dispatch/internal/utils"
)

// CommandRequest is the body of POST /commands and POST /commands/validate
type CommandRequest struct {
	Type       string           `json:"type" binding:"required"`
	DeviceID   string           `json:"device_id" binding:"required"`
	Parameters model.JSONObject `json:"parameters"`
	Priority   string           `json:"priority"`
	// Family overrides the registered device family. Validate only.
	Family string `json:"family,omitempty"`
}

// CommandAccepted is returned for an enqueued command
type CommandAccepted struct {
	Command  *model.DeviceCommand `json:"command"`
	Warnings []string             `json:"warnings"`
}

// FramePreview is the result of POST /commands/validate
type FramePreview struct {
	Family     model.DeviceFamily        `json:"family"`
	Config     model.SerializationConfig `json:"config"`
	Validation model.ValidationResult    `json:"validation"`
	FrameHex   string                    `json:"frame_hex,omitempty"`
	FrameText  string                    `json:"frame_text,omitempty"`
	FrameSize  int                       `json:"frame_size"`
	EncodeErr  string                    `json:"encode_error,omitempty"`
}

// CommandHandler handles command submission, inspection and cancellation
type CommandHandler struct {
	dispatcher *dispatcher.Dispatcher
	queue      *queue.Queue
	serializer *serializer.Serializer
	transports *transport.Registry
	clock      clock.Clock
	audit      *utils.AuditLogger
	logger     *utils.ServiceLogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	d *dispatcher.Dispatcher,
	q *queue.Queue,
	s *serializer.Serializer,
	transports *transport.Registry,
	clk clock.Clock,
	logger *zap.Logger,
) *CommandHandler {
	return &CommandHandler{
		dispatcher: d,
		queue:      q,
		serializer: s,
		transports: transports,
		clock:      clk,
		audit:      utils.NewAuditLogger(logger),
		logger:     utils.NewServiceLogger(logger, "command-handler"),
	}
}

// RegisterRoutes registers command routes
func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	commands := router.Group("/commands")
	{
		commands.POST("", h.SubmitCommand)
		commands.POST("/validate", h.ValidateCommand)
		commands.GET("/:id", h.GetCommand)
		commands.DELETE("/:id", h.CancelCommand)
	}

	router.GET("/queue/stats", h.GetQueueStats)
	router.DELETE("/devices/:device_id/queue", h.ClearDeviceQueue)
}

// buildCommand converts a request into a CREATED command
func (h *CommandHandler) buildCommand(req *CommandRequest) (*model.DeviceCommand, error) {
	commandType := model.CommandType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !commandType.IsKnown() {
		return nil, &model.ValidationError{Field: "type", Message: "unknown command type " + req.Type}
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		return nil, &model.ValidationError{Field: "priority", Message: err.Error()}
	}
	return model.NewDeviceCommand(commandType, req.DeviceID, req.Parameters.Clone(), priority, h.clock.Now()), nil
}

// invalidCommandResponse reports a request that cannot be turned into a command
func invalidCommandResponse(c *gin.Context, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		utils.ValidationErrorResponse(c, map[string]string{verr.Field: verr.Message})
		return
	}
	utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command", err)
}

// SubmitCommand validates a command against its device family and enqueues it
func (h *CommandHandler) SubmitCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	device, ok := h.transports.Device(req.DeviceID)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found", model.ErrUnknownDevice)
		return
	}

	cmd, err := h.buildCommand(&req)
	if err != nil {
		invalidCommandResponse(c, err)
		return
	}

	result := h.serializer.Validate(cmd, device.Family)
	if !result.IsValid {
		utils.CommandRejectedResponse(c, result)
		return
	}

	id, err := h.dispatcher.Submit(cmd)
	if err != nil {
		utils.LogError(utils.LoggerWithRequestID(h.logger.Logger, c.GetString(utils.RequestIDKey)),
			"Command not queued", err,
			zap.String("device_id", req.DeviceID),
			zap.String("command_type", string(cmd.Type)),
		)
		utils.ErrorResponse(c, utils.StatusForError(err), "Failed to queue command", err)
		return
	}

	snapshot, ok := h.queue.Get(id)
	if !ok {
		// already picked up by a worker
		snapshot = &model.DeviceCommand{
			ID:         id,
			Type:       cmd.Type,
			DeviceID:   req.DeviceID,
			Parameters: req.Parameters,
			Priority:   cmd.Priority,
			Status:     model.CommandStatusTransmitting,
			CreatedAt:  cmd.CreatedAt,
		}
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Command queued", CommandAccepted{
		Command:  snapshot,
		Warnings: result.Warnings,
	})
}

// ValidateCommand validates and encodes a command without queueing it
func (h *CommandHandler) ValidateCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var family model.DeviceFamily
	if req.Family != "" {
		family = model.ParseDeviceFamily(req.Family)
	} else if device, ok := h.transports.Device(req.DeviceID); ok {
		family = device.Family
	} else {
		utils.ErrorResponse(c, http.StatusNotFound, "Device not found and no family given", model.ErrUnknownDevice)
		return
	}

	cmd, err := h.buildCommand(&req)
	if err != nil {
		invalidCommandResponse(c, err)
		return
	}

	cfg := h.serializer.GetConfig(family)
	frame, result, err := h.serializer.ValidateAndEncode(cmd, family)

	preview := FramePreview{
		Family:     family,
		Config:     cfg,
		Validation: result,
		FrameSize:  len(frame),
	}
	if err != nil && result.IsValid {
		preview.EncodeErr = err.Error()
	}
	if len(frame) > 0 {
		preview.FrameHex = strings.ToUpper(hex.EncodeToString(frame))
		if cfg.Format != model.FormatBinary {
			preview.FrameText = string(frame)
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Command validated", preview)
}

// GetCommand returns a snapshot of a queued command
func (h *CommandHandler) GetCommand(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command ID", err)
		return
	}

	cmd, ok := h.queue.Get(id)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Command is not queued", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command retrieved", cmd)
}

// CancelCommand cancels a command that is still queued
func (h *CommandHandler) CancelCommand(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command ID", err)
		return
	}

	cancelled := h.queue.Cancel(id)
	h.audit.LogCancellation(id.String(), c.ClientIP(), cancelled)

	if !cancelled {
		utils.ErrorResponse(c, http.StatusConflict, "Command is not queued and cannot be cancelled", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command cancelled", gin.H{
		"id":           id,
		"cancelled_at": h.clock.Now().Format(time.RFC3339Nano),
	})
}

// GetQueueStats returns counts over queued commands
func (h *CommandHandler) GetQueueStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Queue statistics retrieved", h.queue.Statistics())
}

// ClearDeviceQueue cancels every queued command of a device
func (h *CommandHandler) ClearDeviceQueue(c *gin.Context) {
	deviceID := c.Param("device_id")
	removed := h.dispatcher.ClearDeviceQueue(deviceID)
	h.audit.LogQueueCleared(deviceID, c.ClientIP(), removed)

	utils.SuccessResponse(c, http.StatusOK, "Device queue cleared", gin.H{
		"device_id": deviceID,
		"removed":   removed,
	})
}
