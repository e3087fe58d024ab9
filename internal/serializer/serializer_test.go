package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSerializer(t *testing.T) *Serializer {
	t.Helper()
	return New(DefaultOptions(), zap.NewNop())
}

func command(commandType model.CommandType, deviceID string, params model.JSONObject) *model.DeviceCommand {
	return model.NewDeviceCommand(commandType, deviceID, params, model.PriorityNormal, testTime)
}

func containsMessage(messages []string, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestGetConfig(t *testing.T) {
	s := newTestSerializer(t)

	tests := []struct {
		family model.DeviceFamily
		want   model.SerializationConfig
	}{
		{model.FamilyArduino, model.SerializationConfig{Format: model.FormatNative, Encoding: "ascii", IncludeChecksum: true, ChecksumAlgorithm: model.ChecksumCRC8}},
		{model.FamilyESP32, model.SerializationConfig{Format: model.FormatJSON, Encoding: "utf-8", IncludeChecksum: true, ChecksumAlgorithm: model.ChecksumCRC32}},
		{model.FamilyRioRand, model.SerializationConfig{Format: model.FormatBinary, Encoding: "binary", IncludeChecksum: true, ChecksumAlgorithm: model.ChecksumXOR}},
		{model.FamilyGeneric, defaultConfig},
		{model.DeviceFamily("TOASTER"), defaultConfig},
	}

	for _, tt := range tests {
		t.Run(string(tt.family), func(t *testing.T) {
			if got := s.GetConfig(tt.family); got != tt.want {
				t.Errorf("GetConfig(%s) = %+v, want %+v", tt.family, got, tt.want)
			}
		})
	}
}

func TestFamilies(t *testing.T) {
	s := newTestSerializer(t)
	got := s.Families()
	want := []model.DeviceFamily{model.FamilyArduino, model.FamilyESP32, model.FamilyGeneric, model.FamilyRioRand}
	if len(got) != len(want) {
		t.Fatalf("Families() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Families()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	s := newTestSerializer(t)

	tests := []struct {
		name         string
		family       model.DeviceFamily
		cmd          *model.DeviceCommand
		wantValid    bool
		wantError    string
		wantWarning  string
		wantNoWarned bool
	}{
		{
			name:         "arduino digital write",
			family:       model.FamilyArduino,
			cmd:          command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": 13, "value": 1}),
			wantValid:    true,
			wantNoWarned: true,
		},
		{
			name:      "missing value names the parameter",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": 13}),
			wantError: `"value"`,
		},
		{
			name:      "wrong kind",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": "thirteen", "value": 1}),
			wantError: `parameter "pin" must be an integer`,
		},
		{
			name:      "unsupported by family",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandSetMotorSpeed, "uno-1", model.JSONObject{"motor": 1, "speed": 10}),
			wantError: "not supported by device family ARDUINO",
		},
		{
			name:      "empty device id",
			family:    model.FamilyGeneric,
			cmd:       command(model.CommandPing, "", nil),
			wantError: "device_id is required",
		},
		{
			name:      "unknown command type",
			family:    model.FamilyGeneric,
			cmd:       command(model.CommandType("SELF_DESTRUCT"), "dev-1", nil),
			wantError: "unknown command type",
		},
		{
			name:      "negative pin",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandDigitalRead, "uno-1", model.JSONObject{"pin": -1}),
			wantError: "negative",
		},
		{
			name:        "pin above board maximum warns",
			family:      model.FamilyArduino,
			cmd:         command(model.CommandDigitalRead, "uno-1", model.JSONObject{"pin": 80}),
			wantValid:   true,
			wantWarning: "exceeds the highest known",
		},
		{
			name:        "arduino serial pin warns",
			family:      model.FamilyArduino,
			cmd:         command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": 1, "value": "HIGH"}),
			wantValid:   true,
			wantWarning: "serial link",
		},
		{
			name:      "esp32 flash pin",
			family:    model.FamilyESP32,
			cmd:       command(model.CommandDigitalRead, "esp-1", model.JSONObject{"pin": 6}),
			wantError: "reserved",
		},
		{
			name:      "esp32 input-only pin write",
			family:    model.FamilyESP32,
			cmd:       command(model.CommandDigitalWrite, "esp-1", model.JSONObject{"pin": 34, "value": 0}),
			wantError: "input-only",
		},
		{
			name:      "esp32 input-only pin read",
			family:    model.FamilyESP32,
			cmd:       command(model.CommandAnalogRead, "esp-1", model.JSONObject{"pin": 34}),
			wantValid: true,
		},
		{
			name:      "analog write out of range",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandAnalogWrite, "uno-1", model.JSONObject{"pin": 9, "value": 300}),
			wantError: "outside 0..255",
		},
		{
			name:        "pwm frequency above safe maximum",
			family:      model.FamilyESP32,
			cmd:         command(model.CommandSetPWMFrequency, "esp-1", model.JSONObject{"pin": 4, "frequency": 40000}),
			wantValid:   true,
			wantWarning: "safe maximum",
		},
		{
			name:      "pwm frequency above hard limit",
			family:    model.FamilyESP32,
			cmd:       command(model.CommandSetPWMFrequency, "esp-1", model.JSONObject{"pin": 4, "frequency": 250000}),
			wantError: "hard limit",
		},
		{
			name:      "zero pwm frequency",
			family:    model.FamilyESP32,
			cmd:       command(model.CommandSetPWMFrequency, "esp-1", model.JSONObject{"pin": 4, "frequency": 0}),
			wantError: "positive",
		},
		{
			name:        "motor speed above safe maximum",
			family:      model.FamilyRioRand,
			cmd:         command(model.CommandSetMotorSpeed, "rr-1", model.JSONObject{"motor": 1, "speed": -95}),
			wantValid:   true,
			wantWarning: "safe maximum",
		},
		{
			name:      "motor speed out of range",
			family:    model.FamilyRioRand,
			cmd:       command(model.CommandSetMotorSpeed, "rr-1", model.JSONObject{"motor": 1, "speed": 120}),
			wantError: "outside -100..100",
		},
		{
			name:      "bad motor direction",
			family:    model.FamilyRioRand,
			cmd:       command(model.CommandSetMotorDirection, "rr-1", model.JSONObject{"motor": 1, "direction": "SIDEWAYS"}),
			wantError: `parameter "direction"`,
		},
		{
			name:        "relay channel beyond board",
			family:      model.FamilyRioRand,
			cmd:         command(model.CommandSetRelay, "rr-1", model.JSONObject{"channel": 8, "state": true}),
			wantValid:   true,
			wantWarning: "relay channels",
		},
		{
			name:        "unexpected parameter warns",
			family:      model.FamilyArduino,
			cmd:         command(model.CommandPing, "uno-1", model.JSONObject{"nonce": 7}),
			wantValid:   true,
			wantWarning: `unexpected parameter "nonce"`,
		},
		{
			name:      "relay channel beyond binary byte",
			family:    model.FamilyRioRand,
			cmd:       command(model.CommandSetRelay, "rr-1", model.JSONObject{"channel": 300, "state": true}),
			wantError: `"channel" out of uint8 range`,
		},
		{
			name:      "motor beyond binary byte",
			family:    model.FamilyRioRand,
			cmd:       command(model.CommandSetMotorSpeed, "rr-1", model.JSONObject{"motor": 256, "speed": 10}),
			wantError: `"motor" out of uint8 range`,
		},
		{
			name:      "fractional frequency in binary frame",
			family:    model.FamilyRioRand,
			cmd:       command(model.CommandSetPWMFrequency, "rr-1", model.JSONObject{"pin": 2, "frequency": 1000.5}),
			wantError: "whole number",
		},
		{
			name:      "unframeable extra on native line",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandPing, "uno-1", model.JSONObject{"note": "two words"}),
			wantError: `parameter "note"`,
		},
		{
			name:      "non-ascii extra on native line",
			family:    model.FamilyArduino,
			cmd:       command(model.CommandPing, "uno-1", model.JSONObject{"note": "grüße"}),
			wantError: "non-ASCII",
		},
		{
			name:        "unknown family falls back to generic",
			family:      model.DeviceFamily("TOASTER"),
			cmd:         command(model.CommandSetMotorSpeed, "t-1", model.JSONObject{"motor": 0, "speed": 10}),
			wantValid:   true,
			wantWarning: "unknown device family TOASTER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Validate(tt.cmd, tt.family)

			if tt.wantError != "" {
				if result.IsValid {
					t.Fatalf("expected invalid result, got valid (warnings %v)", result.Warnings)
				}
				if !containsMessage(result.Errors, tt.wantError) {
					t.Errorf("errors %v do not mention %q", result.Errors, tt.wantError)
				}
				return
			}

			if result.IsValid != tt.wantValid {
				t.Fatalf("IsValid = %v, errors %v", result.IsValid, result.Errors)
			}
			if len(result.Errors) != 0 {
				t.Errorf("unexpected errors: %v", result.Errors)
			}
			if tt.wantWarning != "" && !containsMessage(result.Warnings, tt.wantWarning) {
				t.Errorf("warnings %v do not mention %q", result.Warnings, tt.wantWarning)
			}
			if tt.wantNoWarned && len(result.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", result.Warnings)
			}
		})
	}
}

func TestValidateEmergencyStopPriority(t *testing.T) {
	s := newTestSerializer(t)

	low := model.NewDeviceCommand(model.CommandEmergencyStop, "uno-1", nil, model.PriorityLow, testTime)
	result := s.Validate(low, model.FamilyArduino)
	if !result.IsValid {
		t.Fatalf("emergency stop should be valid: %v", result.Errors)
	}
	if !containsMessage(result.Warnings, "emergency stop") {
		t.Errorf("expected priority warning, got %v", result.Warnings)
	}

	urgent := model.NewDeviceCommand(model.CommandEmergencyStop, "uno-1", nil, model.PriorityEmergency, testTime)
	if result := s.Validate(urgent, model.FamilyArduino); len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidCommandsAlwaysEncode(t *testing.T) {
	s := newTestSerializer(t)

	commands := []*model.DeviceCommand{
		command(model.CommandPing, "d-1", nil),
		command(model.CommandPing, "d-1", model.JSONObject{"nonce": 7}),
		command(model.CommandPing, "d-1", model.JSONObject{"note": "two words"}),
		command(model.CommandPing, "d-1", model.JSONObject{"note": "grüße"}),
		command(model.CommandPing, "d-1", model.JSONObject{"note": map[string]interface{}{"a": 1}}),
		command(model.CommandDigitalWrite, "d-1", model.JSONObject{"pin": 13, "value": "HIGH"}),
		command(model.CommandDigitalWrite, "d-1", model.JSONObject{"pin": 300, "value": 1}),
		command(model.CommandAnalogWrite, "d-1", model.JSONObject{"pin": 5, "value": 128}),
		command(model.CommandSetPWM, "d-1", model.JSONObject{"pin": 9, "duty": 200}),
		command(model.CommandSetPWMFrequency, "d-1", model.JSONObject{"pin": 2, "frequency": 1000}),
		command(model.CommandSetPWMFrequency, "d-1", model.JSONObject{"pin": 2, "frequency": 1000.5}),
		command(model.CommandSetRelay, "d-1", model.JSONObject{"channel": 3, "state": true}),
		command(model.CommandSetRelay, "d-1", model.JSONObject{"channel": 300, "state": false}),
		command(model.CommandSetMotorSpeed, "d-1", model.JSONObject{"motor": 1, "speed": -50}),
		command(model.CommandSetMotorSpeed, "d-1", model.JSONObject{"motor": 256, "speed": 10}),
		command(model.CommandSetMotorDirection, "d-1", model.JSONObject{"motor": 1, "direction": "reverse"}),
		command(model.CommandEmergencyStop, "d-1", nil),
	}

	families := append(s.Families(), model.DeviceFamily("TOASTER"))
	for _, family := range families {
		for _, cmd := range commands {
			result := s.Validate(cmd, family)
			if !result.IsValid {
				continue
			}
			if _, err := s.Encode(cmd, s.GetConfig(family)); err != nil {
				t.Errorf("%s %s %v: valid (warnings %v) but Encode failed: %v",
					family, cmd.Type, cmd.Parameters, result.Warnings, err)
			}
		}
	}
}

func TestEncodeNativeFrame(t *testing.T) {
	s := newTestSerializer(t)
	cmd := command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"value": true, "pin": 13})

	frame, err := s.Encode(cmd, s.GetConfig(model.FamilyArduino))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "$DIGITAL_WRITE pin=13 value=1*1D\r\n"
	if string(frame) != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestEncodeNativeFrameDecimal(t *testing.T) {
	s := newTestSerializer(t)
	cmd := command(model.CommandSetPWMFrequency, "uno-1", model.JSONObject{"pin": 9, "frequency": 1000.5})

	frame, err := s.Encode(cmd, s.GetConfig(model.FamilyArduino))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := "$SET_PWM_FREQUENCY pin=9 frequency=1000.5*5B\r\n"; string(frame) != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestEncodeNativeExtrasSorted(t *testing.T) {
	s := newTestSerializer(t)
	cfg := model.SerializationConfig{Format: model.FormatNative, Encoding: "ascii"}
	cmd := command(model.CommandPing, "uno-1", model.JSONObject{"zeta": "z", "alpha": 1})

	frame, err := s.Encode(cmd, cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := "$PING alpha=1 zeta=z\r\n"; string(frame) != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestEncodeNativeRejectsUnframeableValues(t *testing.T) {
	s := newTestSerializer(t)
	cfg := s.GetConfig(model.FamilyArduino)

	tests := []struct {
		name   string
		params model.JSONObject
	}{
		{"space in value", model.JSONObject{"note": "two words"}},
		{"non-ascii value", model.JSONObject{"note": "grüße"}},
		{"nested value", model.JSONObject{"note": map[string]interface{}{"a": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Encode(command(model.CommandPing, "uno-1", tt.params), cfg)
			if err == nil {
				t.Fatal("expected serialization error")
			}
			if !model.IsSerializationError(err) {
				t.Errorf("error %v is not a SerializationError", err)
			}
		})
	}
}

func TestEncodeJSONFrame(t *testing.T) {
	s := newTestSerializer(t)
	cmd := command(model.CommandDigitalWrite, "esp-1", model.JSONObject{"pin": 2, "value": 1})

	frame, err := s.Encode(cmd, s.GetConfig(model.FamilyESP32))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"DIGITAL_WRITE","deviceId":"esp-1","parameters":{"pin":2,"value":1},"checksum":"A30AAE43"}` + "\n"
	if string(frame) != want {
		t.Errorf("frame = %s, want %s", frame, want)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if decoded["checksum"] != "A30AAE43" {
		t.Errorf("checksum = %v", decoded["checksum"])
	}
}

func TestEncodeJSONWithoutChecksum(t *testing.T) {
	s := newTestSerializer(t)
	cmd := command(model.CommandSetMotorDirection, "dev-1", model.JSONObject{"motor": 2, "direction": "forward"})

	frame, err := s.Encode(cmd, s.GetConfig(model.FamilyGeneric))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"SET_MOTOR_DIRECTION","deviceId":"dev-1","parameters":{"direction":"FORWARD","motor":2}}` + "\n"
	if string(frame) != want {
		t.Errorf("frame = %s, want %s", frame, want)
	}
}

func TestEncodeBinaryFrame(t *testing.T) {
	s := newTestSerializer(t)
	cfg := s.GetConfig(model.FamilyRioRand)

	tests := []struct {
		name string
		cmd  *model.DeviceCommand
		want []byte
	}{
		{
			name: "motor speed packs signed byte",
			cmd:  command(model.CommandSetMotorSpeed, "rr-1", model.JSONObject{"motor": 1, "speed": -50}),
			want: []byte{0x40, 0x01, 0xCE, 0x8F},
		},
		{
			name: "relay",
			cmd:  command(model.CommandSetRelay, "rr-1", model.JSONObject{"channel": 3, "state": "ON"}),
			want: []byte{0x30, 0x03, 0x01, 0x32},
		},
		{
			name: "pwm frequency packs big-endian uint32",
			cmd:  command(model.CommandSetPWMFrequency, "rr-1", model.JSONObject{"pin": 2, "frequency": 1000}),
			want: []byte{0x21, 0x02, 0x00, 0x00, 0x03, 0xE8, 0x21 ^ 0x02 ^ 0x03 ^ 0xE8},
		},
		{
			name: "emergency stop has no parameters",
			cmd:  command(model.CommandEmergencyStop, "rr-1", nil),
			want: []byte{0xFF, 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := s.Encode(tt.cmd, cfg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = % X, want % X", frame, tt.want)
			}
		})
	}
}

func TestEncodeBinaryRejectsFractionalFrequency(t *testing.T) {
	s := newTestSerializer(t)
	cmd := command(model.CommandSetPWMFrequency, "rr-1", model.JSONObject{"pin": 2, "frequency": 1000.5})

	_, err := s.Encode(cmd, s.GetConfig(model.FamilyRioRand))
	if !model.IsSerializationError(err) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	s := newTestSerializer(t)
	params := model.JSONObject{"pin": 5, "duty": 128, "label": "fan", "zone": 2}

	for _, family := range []model.DeviceFamily{model.FamilyArduino, model.FamilyESP32, model.FamilyRioRand} {
		cfg := s.GetConfig(family)
		first, err := s.Encode(command(model.CommandSetPWM, "dev-1", params), cfg)
		if err != nil {
			t.Fatalf("%s: Encode: %v", family, err)
		}
		for i := 0; i < 20; i++ {
			again, err := s.Encode(command(model.CommandSetPWM, "dev-1", params.Clone()), cfg)
			if err != nil {
				t.Fatalf("%s: Encode: %v", family, err)
			}
			if !bytes.Equal(first, again) {
				t.Fatalf("%s: frame changed between runs: %q vs %q", family, first, again)
			}
		}
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	s := newTestSerializer(t)
	cfg := model.SerializationConfig{Format: "protobuf"}

	_, err := s.Encode(command(model.CommandPing, "dev-1", nil), cfg)
	var serr *model.SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
	if serr.Retryable() {
		t.Error("serialization errors must not be retryable")
	}
}

func TestEncodeMissingParameter(t *testing.T) {
	s := newTestSerializer(t)
	_, err := s.Encode(command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": 13}), s.GetConfig(model.FamilyArduino))
	if !model.IsSerializationError(err) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
	if !strings.Contains(err.Error(), `"value"`) {
		t.Errorf("error %q does not name the missing parameter", err)
	}
}

func TestValidateAndEncode(t *testing.T) {
	s := newTestSerializer(t)

	frame, result, err := s.ValidateAndEncode(command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": 13, "value": 1}), model.FamilyArduino)
	if err != nil {
		t.Fatalf("ValidateAndEncode: %v", err)
	}
	if !result.IsValid || len(frame) == 0 {
		t.Fatalf("unexpected result %+v frame %q", result, frame)
	}

	frame, result, err = s.ValidateAndEncode(command(model.CommandDigitalWrite, "uno-1", model.JSONObject{"pin": 13}), model.FamilyArduino)
	if !model.IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if result.IsValid || frame != nil {
		t.Errorf("invalid command produced frame %q", frame)
	}
}
