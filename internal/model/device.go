// internal/model/device.go
package model

import "strings"

// DeviceFamily identifies a class of hardware sharing one wire framing and checksum scheme
type DeviceFamily string

const (
	FamilyArduino DeviceFamily = "ARDUINO"
	FamilyESP32   DeviceFamily = "ESP32"
	FamilyRioRand DeviceFamily = "RIORAND"
	FamilyGeneric DeviceFamily = "GENERIC"
)

// ParseDeviceFamily normalizes a user supplied family name. Unrecognized
// names map to FamilyGeneric.
func ParseDeviceFamily(s string) DeviceFamily {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ARDUINO", "ARDUINO_UNO", "ARDUINO_MEGA", "ARDUINO_NANO":
		return FamilyArduino
	case "ESP32", "ESP32_S3", "ESP32_C3":
		return FamilyESP32
	case "RIORAND", "RIORAND_RELAY", "RIORAND_MOTOR":
		return FamilyRioRand
	default:
		return FamilyGeneric
	}
}

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
	ConnectionTypeTCP    ConnectionType = "TCP"
	ConnectionTypeMQTT   ConnectionType = "MQTT"
	ConnectionTypeMemory ConnectionType = "MEMORY"
)

// JSONObject is an open key/value mapping used for command parameters and
// transport options.
type JSONObject map[string]interface{}

// Clone returns a deep copy of the object. Nested objects and arrays are
// copied as well so the result shares no mutable state with j.
func (j JSONObject) Clone() JSONObject {
	if j == nil {
		return nil
	}
	out := make(JSONObject, len(j))
	for k, v := range j {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(JSONObject(t).Clone())
	case JSONObject:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Device is a configured piece of hardware the dispatcher can address
type Device struct {
	ID             string         `json:"id"`
	Name           string         `json:"name,omitempty"`
	Family         DeviceFamily   `json:"family"`
	ConnectionType ConnectionType `json:"connection_type"`
	Options        JSONObject     `json:"options,omitempty"`
}
