// internal/model/command.go
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandType represents the kind of action a command asks a device to perform
type CommandType string

const (
	CommandDigitalWrite      CommandType = "DIGITAL_WRITE"
	CommandDigitalRead       CommandType = "DIGITAL_READ"
	CommandAnalogRead        CommandType = "ANALOG_READ"
	CommandAnalogWrite       CommandType = "ANALOG_WRITE"
	CommandSetPWM            CommandType = "SET_PWM"
	CommandSetPWMFrequency   CommandType = "SET_PWM_FREQUENCY"
	CommandSetRelay          CommandType = "SET_RELAY"
	CommandSetMotorSpeed     CommandType = "SET_MOTOR_SPEED"
	CommandSetMotorDirection CommandType = "SET_MOTOR_DIRECTION"
	CommandPing              CommandType = "PING"
	CommandGetStatus         CommandType = "GET_STATUS"
	CommandEmergencyStop     CommandType = "EMERGENCY_STOP"
)

// AllCommandTypes lists every command type in a stable order
var AllCommandTypes = []CommandType{
	CommandDigitalWrite,
	CommandDigitalRead,
	CommandAnalogRead,
	CommandAnalogWrite,
	CommandSetPWM,
	CommandSetPWMFrequency,
	CommandSetRelay,
	CommandSetMotorSpeed,
	CommandSetMotorDirection,
	CommandPing,
	CommandGetStatus,
	CommandEmergencyStop,
}

// IsKnown reports whether t is one of the declared command types
func (t CommandType) IsKnown() bool {
	for _, known := range AllCommandTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CommandPriority orders commands in the queue. Larger values are dequeued first.
type CommandPriority int

const (
	PriorityLow       CommandPriority = 0 // Telemetry reads, diagnostics
	PriorityNormal    CommandPriority = 1 // Routine writes
	PriorityHigh      CommandPriority = 2 // Operator initiated actions
	PriorityEmergency CommandPriority = 3 // Emergency stop, safety controller
)

// AllPriorities lists priorities from lowest to highest
var AllPriorities = []CommandPriority{PriorityLow, PriorityNormal, PriorityHigh, PriorityEmergency}

func (p CommandPriority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityEmergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// IsValid reports whether p is one of the four declared priorities
func (p CommandPriority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityEmergency
}

// ParsePriority converts a priority name into a CommandPriority
func ParsePriority(s string) (CommandPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "", "NORMAL":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "EMERGENCY":
		return PriorityEmergency, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority: %q", s)
	}
}

// MarshalText renders the priority by name so it reads well in JSON bodies and map keys
func (p CommandPriority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a priority name
func (p *CommandPriority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// CommandStatus represents where a command is in its lifecycle
type CommandStatus string

const (
	CommandStatusCreated      CommandStatus = "CREATED"
	CommandStatusQueued       CommandStatus = "QUEUED"
	CommandStatusTransmitting CommandStatus = "TRANSMITTING"
	CommandStatusCancelled    CommandStatus = "CANCELLED"
	CommandStatusCompleted    CommandStatus = "COMPLETED"
	CommandStatusFailed       CommandStatus = "FAILED"
)

var statusTransitions = map[CommandStatus][]CommandStatus{
	CommandStatusCreated:      {CommandStatusQueued},
	CommandStatusQueued:       {CommandStatusTransmitting, CommandStatusCancelled},
	CommandStatusTransmitting: {CommandStatusCompleted, CommandStatusFailed},
}

// IsTerminal reports whether no further transitions are possible from s
func (s CommandStatus) IsTerminal() bool {
	return s == CommandStatusCancelled ||
		s == CommandStatusCompleted ||
		s == CommandStatusFailed
}

// CanTransitionTo reports whether s -> next is an allowed lifecycle step
func (s CommandStatus) CanTransitionTo(next CommandStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeviceCommand is a single instruction addressed to one device
type DeviceCommand struct {
	ID           uuid.UUID       `json:"id"`
	Type         CommandType     `json:"type"`
	DeviceID     string          `json:"device_id"`
	Parameters   JSONObject      `json:"parameters,omitempty"`
	Priority     CommandPriority `json:"priority"`
	Status       CommandStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	QueuedAt     *time.Time      `json:"queued_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// NewDeviceCommand creates a command in the CREATED state with a fresh ID
func NewDeviceCommand(commandType CommandType, deviceID string, params JSONObject, priority CommandPriority, createdAt time.Time) *DeviceCommand {
	if params == nil {
		params = JSONObject{}
	}
	return &DeviceCommand{
		ID:         uuid.New(),
		Type:       commandType,
		DeviceID:   deviceID,
		Parameters: params,
		Priority:   priority,
		Status:     CommandStatusCreated,
		CreatedAt:  createdAt,
	}
}

// TransitionTo moves the command to next, stamping the matching timestamp.
// Terminal states reject every transition.
func (c *DeviceCommand) TransitionTo(next CommandStatus, at time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}

	c.Status = next
	if next == CommandStatusQueued {
		queuedAt := at
		c.QueuedAt = &queuedAt
	}
	if next.IsTerminal() {
		completedAt := at
		c.CompletedAt = &completedAt
	}
	return nil
}

// Fail moves a transmitting command to FAILED and keeps the reason
func (c *DeviceCommand) Fail(err error, at time.Time) error {
	if transitionErr := c.TransitionTo(CommandStatusFailed, at); transitionErr != nil {
		return transitionErr
	}
	if err != nil {
		msg := err.Error()
		c.ErrorMessage = &msg
	}
	return nil
}

// IsEmergency checks if command carries emergency priority
func (c *DeviceCommand) IsEmergency() bool {
	return c.Priority == PriorityEmergency
}

// Clone returns an independent snapshot of the command
func (c *DeviceCommand) Clone() *DeviceCommand {
	if c == nil {
		return nil
	}
	out := *c
	out.Parameters = c.Parameters.Clone()
	if c.QueuedAt != nil {
		t := *c.QueuedAt
		out.QueuedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	if c.ErrorMessage != nil {
		msg := *c.ErrorMessage
		out.ErrorMessage = &msg
	}
	return &out
}
