// internal/serializer/encoder.go
package serializer

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"device-dispatch/internal/model"
)

// FrameEncoder turns a command into one wire frame of a single format
type FrameEncoder interface {
	Format() model.SerializationFormat
	Encode(cmd *model.DeviceCommand, cfg model.SerializationConfig) ([]byte, error)
}

// field is one parameter ready for framing
type field struct {
	key   string
	raw   interface{}
	value interface{} // canonical value for schema keys, raw otherwise
	spec  *paramSpec
}

func encodeError(cmd *model.DeviceCommand, format model.SerializationFormat, reason string, args ...interface{}) error {
	var commandType model.CommandType
	if cmd != nil {
		commandType = cmd.Type
	}
	return &model.SerializationError{
		CommandType: commandType,
		Format:      format,
		Reason:      fmt.Sprintf(reason, args...),
	}
}

// orderedFields returns schema parameters in wire order followed by any extra
// parameters sorted by key. A missing or ill-typed schema parameter fails
// the encode: the command should never have passed validation.
func orderedFields(cmd *model.DeviceCommand, format model.SerializationFormat) ([]field, error) {
	if cmd == nil {
		return nil, encodeError(nil, format, "command is nil")
	}
	specs, ok := commandSchemas[cmd.Type]
	if !ok {
		return nil, encodeError(cmd, format, "unknown command type")
	}

	fields := make([]field, 0, len(cmd.Parameters))
	for i := range specs {
		spec := &specs[i]
		raw, present := cmd.Parameters[spec.Key]
		if !present {
			return nil, encodeError(cmd, format, "missing required parameter %q", spec.Key)
		}
		value, ok := coerce(spec.Kind, raw)
		if !ok {
			return nil, encodeError(cmd, format, "parameter %q must be %s", spec.Key, spec.Kind.describe())
		}
		fields = append(fields, field{key: spec.Key, raw: raw, value: value, spec: spec})
	}

	extras := make([]string, 0)
	for key := range cmd.Parameters {
		if !isSchemaKey(specs, key) {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		raw := cmd.Parameters[key]
		fields = append(fields, field{key: key, raw: raw, value: raw})
	}
	return fields, nil
}

// textValue renders a canonical value for textual frames
func textValue(f field) interface{} {
	if f.spec != nil && f.spec.Kind == kindDirection {
		return strings.ToUpper(strings.TrimSpace(f.raw.(string)))
	}
	return f.value
}

// jsonEncoder produces {"type","deviceId","parameters",["checksum"]} frames
// terminated by a newline
type jsonEncoder struct{}

type jsonFrame struct {
	Type       model.CommandType      `json:"type"`
	DeviceID   string                 `json:"deviceId"`
	Parameters map[string]interface{} `json:"parameters"`
	Checksum   string                 `json:"checksum,omitempty"`
}

func (jsonEncoder) Format() model.SerializationFormat { return model.FormatJSON }

func (e jsonEncoder) Encode(cmd *model.DeviceCommand, cfg model.SerializationConfig) ([]byte, error) {
	fields, err := orderedFields(cmd, model.FormatJSON)
	if err != nil {
		return nil, err
	}

	params := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		params[f.key] = textValue(f)
	}

	frame := jsonFrame{
		Type:       cmd.Type,
		DeviceID:   cmd.DeviceID,
		Parameters: params,
	}

	// encoding/json sorts map keys, which keeps the frame deterministic
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, encodeError(cmd, model.FormatJSON, "marshal: %v", err)
	}

	if cfg.IncludeChecksum {
		sum, err := ChecksumHex(cfg.ChecksumAlgorithm, body)
		if err != nil {
			return nil, encodeError(cmd, model.FormatJSON, "%v", err)
		}
		frame.Checksum = sum
		body, err = json.Marshal(frame)
		if err != nil {
			return nil, encodeError(cmd, model.FormatJSON, "marshal: %v", err)
		}
	}

	return append(body, '\n'), nil
}

// nativeEncoder produces "$TYPE k=v k=v*CS\r\n" lines
type nativeEncoder struct{}

func (nativeEncoder) Format() model.SerializationFormat { return model.FormatNative }

func (e nativeEncoder) Encode(cmd *model.DeviceCommand, cfg model.SerializationConfig) ([]byte, error) {
	fields, err := orderedFields(cmd, model.FormatNative)
	if err != nil {
		return nil, err
	}

	var line bytes.Buffer
	line.WriteByte('$')
	line.WriteString(string(cmd.Type))
	for _, f := range fields {
		if !validToken(f.key) {
			return nil, encodeError(cmd, model.FormatNative, "parameter key %q cannot be framed", f.key)
		}
		rendered, err := renderText(textValue(f))
		if err != nil {
			return nil, encodeError(cmd, model.FormatNative, "parameter %q: %v", f.key, err)
		}
		line.WriteByte(' ')
		line.WriteString(f.key)
		line.WriteByte('=')
		line.WriteString(rendered)
	}

	if cfg.Encoding == "ascii" {
		for _, b := range line.Bytes() {
			if b > 0x7F {
				return nil, encodeError(cmd, model.FormatNative, "frame contains non-ASCII bytes")
			}
		}
	}

	if cfg.IncludeChecksum {
		sum, err := ChecksumHex(cfg.ChecksumAlgorithm, line.Bytes())
		if err != nil {
			return nil, encodeError(cmd, model.FormatNative, "%v", err)
		}
		line.WriteByte('*')
		line.WriteString(sum)
	}
	line.WriteString("\r\n")
	return line.Bytes(), nil
}

// validToken rejects text that would break the line grammar
func validToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, " \t\r\n=*$")
}

func renderText(v interface{}) (string, error) {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return decimal.NewFromFloat(t).String(), nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	case string:
		if !validToken(t) {
			return "", fmt.Errorf("value %q cannot be framed", t)
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	}
	if n, ok := asInt(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	if f, ok := asNumber(v); ok {
		return decimal.NewFromFloat(f).String(), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

// binaryEncoder produces [type code][packed parameters][checksum] frames.
// Parameters outside the command schema are not representable and are dropped.
type binaryEncoder struct{}

func (binaryEncoder) Format() model.SerializationFormat { return model.FormatBinary }

func (e binaryEncoder) Encode(cmd *model.DeviceCommand, cfg model.SerializationConfig) ([]byte, error) {
	fields, err := orderedFields(cmd, model.FormatBinary)
	if err != nil {
		return nil, err
	}
	code, ok := binaryTypeCodes[cmd.Type]
	if !ok {
		return nil, encodeError(cmd, model.FormatBinary, "no binary type code")
	}

	frame := []byte{code}
	for _, f := range fields {
		if f.spec == nil {
			continue
		}
		packed, err := pack(f)
		if err != nil {
			return nil, encodeError(cmd, model.FormatBinary, "%v", err)
		}
		frame = append(frame, packed...)
	}

	if cfg.IncludeChecksum {
		sum, err := Checksum(cfg.ChecksumAlgorithm, frame)
		if err != nil {
			return nil, encodeError(cmd, model.FormatBinary, "%v", err)
		}
		frame = append(frame, sum...)
	}
	return frame, nil
}

func pack(f field) ([]byte, error) {
	switch f.spec.Wire {
	case wireUint8:
		n, ok := f.value.(int64)
		if !ok || n < 0 || n > 0xFF {
			return nil, fmt.Errorf("parameter %q out of uint8 range: %v", f.key, f.raw)
		}
		return []byte{byte(n)}, nil
	case wireInt8:
		n, ok := f.value.(int64)
		if !ok || n < -128 || n > 127 {
			return nil, fmt.Errorf("parameter %q out of int8 range: %v", f.key, f.raw)
		}
		return []byte{byte(int8(n))}, nil
	case wireUint32:
		var n int64
		switch v := f.value.(type) {
		case int64:
			n = v
		case float64:
			var ok bool
			if n, ok = integralFloat(v); !ok {
				return nil, fmt.Errorf("parameter %q must be a whole number for binary frames: %v", f.key, f.raw)
			}
		}
		if n < 0 || n > 0xFFFFFFFF {
			return nil, fmt.Errorf("parameter %q out of uint32 range: %v", f.key, f.raw)
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(n))
		return out, nil
	}
	return nil, fmt.Errorf("parameter %q has no wire type", f.key)
}
