// internal/model/event.go
package model

import "time"

// EventType represents the type of command lifecycle event
type EventType string

const (
	EventCommandQueued      EventType = "COMMAND_QUEUED"
	EventCommandCancelled   EventType = "COMMAND_CANCELLED"
	EventCommandTransmitted EventType = "COMMAND_TRANSMITTING"
	EventCommandCompleted   EventType = "COMMAND_COMPLETED"
	EventCommandFailed      EventType = "COMMAND_FAILED"
	EventDeviceQueueCleared EventType = "DEVICE_QUEUE_CLEARED"
	EventValidationWarning  EventType = "VALIDATION_WARNING"
)

// CommandEvent is published whenever a command changes state
type CommandEvent struct {
	Type      EventType  `json:"type"`
	DeviceID  string     `json:"device_id"`
	Data      JSONObject `json:"data,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// EventForCommand builds an event describing cmd
func EventForCommand(eventType EventType, cmd *DeviceCommand, at time.Time) CommandEvent {
	data := JSONObject{
		"command_id":   cmd.ID.String(),
		"command_type": string(cmd.Type),
		"priority":     cmd.Priority.String(),
		"status":       string(cmd.Status),
	}
	if cmd.ErrorMessage != nil {
		data["error"] = *cmd.ErrorMessage
	}
	return CommandEvent{
		Type:      eventType,
		DeviceID:  cmd.DeviceID,
		Data:      data,
		Timestamp: at,
	}
}
