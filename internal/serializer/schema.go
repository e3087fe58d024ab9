// internal/serializer/schema.go
package serializer

import (
	"encoding/json"
	"math"
	"strings"

	"device-dispatch/internal/model"
)

type paramKind int

const (
	kindInt paramKind = iota
	kindNumber
	kindLevel
	kindDirection
)

func (k paramKind) describe() string {
	switch k {
	case kindInt:
		return "an integer"
	case kindNumber:
		return "a number"
	case kindLevel:
		return "a logic level (0/1, true/false, HIGH/LOW)"
	case kindDirection:
		return "one of FORWARD, REVERSE, BRAKE"
	default:
		return "a value"
	}
}

// wireType is how a parameter is packed in binary frames
type wireType int

const (
	wireUint8 wireType = iota
	wireInt8
	wireUint32
)

type paramSpec struct {
	Key  string
	Kind paramKind
	Wire wireType
}

var pinParam = paramSpec{Key: "pin", Kind: kindInt, Wire: wireUint8}

// commandSchemas lists the required parameters of each command type in wire order
var commandSchemas = map[model.CommandType][]paramSpec{
	model.CommandDigitalWrite: {pinParam, {Key: "value", Kind: kindLevel, Wire: wireUint8}},
	model.CommandDigitalRead:  {pinParam},
	model.CommandAnalogRead:   {pinParam},
	model.CommandAnalogWrite:  {pinParam, {Key: "value", Kind: kindInt, Wire: wireUint8}},
	model.CommandSetPWM:       {pinParam, {Key: "duty", Kind: kindInt, Wire: wireUint8}},
	model.CommandSetPWMFrequency: {
		pinParam,
		{Key: "frequency", Kind: kindNumber, Wire: wireUint32},
	},
	model.CommandSetRelay: {
		{Key: "channel", Kind: kindInt, Wire: wireUint8},
		{Key: "state", Kind: kindLevel, Wire: wireUint8},
	},
	model.CommandSetMotorSpeed: {
		{Key: "motor", Kind: kindInt, Wire: wireUint8},
		{Key: "speed", Kind: kindInt, Wire: wireInt8},
	},
	model.CommandSetMotorDirection: {
		{Key: "motor", Kind: kindInt, Wire: wireUint8},
		{Key: "direction", Kind: kindDirection, Wire: wireUint8},
	},
	model.CommandPing:          {},
	model.CommandGetStatus:     {},
	model.CommandEmergencyStop: {},
}

// binaryTypeCodes is the leading byte of a binary frame
var binaryTypeCodes = map[model.CommandType]byte{
	model.CommandPing:              0x01,
	model.CommandGetStatus:         0x02,
	model.CommandDigitalWrite:      0x10,
	model.CommandDigitalRead:       0x11,
	model.CommandAnalogRead:        0x12,
	model.CommandAnalogWrite:       0x13,
	model.CommandSetPWM:            0x20,
	model.CommandSetPWMFrequency:   0x21,
	model.CommandSetRelay:          0x30,
	model.CommandSetMotorSpeed:     0x40,
	model.CommandSetMotorDirection: 0x41,
	model.CommandEmergencyStop:     0xFF,
}

var directionCodes = map[string]int64{
	"BRAKE":   0,
	"FORWARD": 1,
	"REVERSE": 2,
}

func isSchemaKey(specs []paramSpec, key string) bool {
	for _, spec := range specs {
		if spec.Key == key {
			return true
		}
	}
	return false
}

// coerce converts a raw parameter value into its canonical form: int64 for
// integers, levels and directions, float64 for numbers.
func coerce(kind paramKind, v interface{}) (interface{}, bool) {
	switch kind {
	case kindInt:
		n, ok := asInt(v)
		return n, ok
	case kindNumber:
		f, ok := asNumber(v)
		return f, ok
	case kindLevel:
		n, ok := asLevel(v)
		return n, ok
	case kindDirection:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		code, ok := directionCodes[strings.ToUpper(strings.TrimSpace(s))]
		return code, ok
	}
	return nil, false
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return integralFloat(float64(n))
	case float64:
		return integralFloat(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		f := float64(n)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func asLevel(v interface{}) (int64, bool) {
	switch l := v.(type) {
	case bool:
		if l {
			return 1, true
		}
		return 0, true
	case string:
		switch strings.ToUpper(strings.TrimSpace(l)) {
		case "1", "HIGH", "ON", "TRUE":
			return 1, true
		case "0", "LOW", "OFF", "FALSE":
			return 0, true
		}
		return 0, false
	}
	if n, ok := asInt(v); ok && (n == 0 || n == 1) {
		return n, true
	}
	return 0, false
}
