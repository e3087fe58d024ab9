// internal/serializer/validator.go
package serializer

import (
	"encoding/json"
	"fmt"
	"sort"

	"device-dispatch/internal/model"
)

// writeCommands drive an output pin
var writeCommands = map[model.CommandType]bool{
	model.CommandDigitalWrite:    true,
	model.CommandAnalogWrite:     true,
	model.CommandSetPWM:          true,
	model.CommandSetPWMFrequency: true,
}

// validate checks cmd against profile. Unsupported types and missing or
// ill-typed parameters are errors; values that are legal but unusual are
// warnings.
func (s *Serializer) validate(cmd *model.DeviceCommand, profile *FamilyProfile) model.ValidationResult {
	result := model.NewValidationResult()

	if cmd == nil {
		result.AddError("command is nil")
		return result
	}
	if cmd.DeviceID == "" {
		result.AddError("device_id is required")
	}

	specs, known := commandSchemas[cmd.Type]
	if !known {
		result.AddError(fmt.Sprintf("unknown command type %q", cmd.Type))
		return result
	}
	if !profile.Supports(cmd.Type) {
		result.AddError(fmt.Sprintf("command type %s is not supported by device family %s", cmd.Type, profile.Family))
	}

	values := make(map[string]interface{}, len(specs))
	for _, spec := range specs {
		raw, present := cmd.Parameters[spec.Key]
		if !present || raw == nil {
			result.AddError(fmt.Sprintf("missing required parameter %q", spec.Key))
			continue
		}
		value, ok := coerce(spec.Kind, raw)
		if !ok {
			result.AddError(fmt.Sprintf("parameter %q must be %s, got %v", spec.Key, spec.Kind.describe(), raw))
			continue
		}
		values[spec.Key] = value
	}

	extras := make([]string, 0)
	for key := range cmd.Parameters {
		if !isSchemaKey(specs, key) {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		result.AddWarning(fmt.Sprintf("unexpected parameter %q", key))
	}

	s.checkPin(cmd.Type, values, profile, &result)
	s.checkRanges(cmd, values, profile, &result)
	checkFraming(cmd, specs, values, extras, profile.Config, &result)

	return result
}

// checkFraming reports values the family's wire format cannot carry, so a
// valid command always encodes.
func checkFraming(cmd *model.DeviceCommand, specs []paramSpec, values map[string]interface{}, extras []string, cfg model.SerializationConfig, result *model.ValidationResult) {
	switch cfg.Format {
	case model.FormatBinary:
		for i := range specs {
			spec := &specs[i]
			value, ok := values[spec.Key]
			if !ok {
				continue
			}
			if _, err := pack(field{key: spec.Key, raw: cmd.Parameters[spec.Key], value: value, spec: spec}); err != nil {
				result.AddError(err.Error())
			}
		}

	case model.FormatNative:
		for _, key := range extras {
			if !validToken(key) {
				result.AddError(fmt.Sprintf("parameter key %q cannot be framed", key))
				continue
			}
			rendered, err := renderText(cmd.Parameters[key])
			if err != nil {
				result.AddError(fmt.Sprintf("parameter %q: %v", key, err))
				continue
			}
			if cfg.Encoding == "ascii" && !isASCII(key+rendered) {
				result.AddError(fmt.Sprintf("parameter %q contains non-ASCII text", key))
			}
		}

	case model.FormatJSON:
		for _, key := range extras {
			if _, err := json.Marshal(cmd.Parameters[key]); err != nil {
				result.AddError(fmt.Sprintf("parameter %q cannot be marshalled: %v", key, err))
			}
		}
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

func (s *Serializer) checkPin(commandType model.CommandType, values map[string]interface{}, profile *FamilyProfile, result *model.ValidationResult) {
	v, ok := values["pin"]
	if !ok {
		return
	}
	pin := v.(int64)

	if pin < 0 {
		result.AddError(fmt.Sprintf("pin %d is negative", pin))
		return
	}
	if profile.ReservedPins[pin] {
		result.AddError(fmt.Sprintf("pin %d is reserved on %s boards", pin, profile.Family))
		return
	}
	if writeCommands[commandType] && profile.InputOnlyPins[pin] {
		result.AddError(fmt.Sprintf("pin %d is input-only on %s boards", pin, profile.Family))
		return
	}
	if profile.MaxPin > 0 && pin > int64(profile.MaxPin) {
		result.AddWarning(fmt.Sprintf("pin %d exceeds the highest known %s pin (%d)", pin, profile.Family, profile.MaxPin))
	}
	if writeCommands[commandType] && profile.SerialPins[pin] {
		result.AddWarning(fmt.Sprintf("pin %d is shared with the serial link; driving it may drop the connection", pin))
	}
}

func (s *Serializer) checkRanges(cmd *model.DeviceCommand, values map[string]interface{}, profile *FamilyProfile, result *model.ValidationResult) {
	switch cmd.Type {
	case model.CommandAnalogWrite:
		if v, ok := values["value"]; ok {
			checkByte("value", v.(int64), result)
		}

	case model.CommandSetPWM:
		if v, ok := values["duty"]; ok {
			checkByte("duty", v.(int64), result)
		}

	case model.CommandSetPWMFrequency:
		v, ok := values["frequency"]
		if !ok {
			return
		}
		freq := v.(float64)
		switch {
		case freq <= 0:
			result.AddError(fmt.Sprintf("frequency must be positive, got %v", freq))
		case s.options.PWMFrequencyLimit > 0 && freq > s.options.PWMFrequencyLimit:
			result.AddError(fmt.Sprintf("frequency %v Hz exceeds the hard limit of %v Hz", freq, s.options.PWMFrequencyLimit))
		case s.options.MaxSafePWMFrequency > 0 && freq > s.options.MaxSafePWMFrequency:
			result.AddWarning(fmt.Sprintf("frequency %v Hz is above the typical safe maximum of %v Hz", freq, s.options.MaxSafePWMFrequency))
		}

	case model.CommandSetRelay:
		v, ok := values["channel"]
		if !ok {
			return
		}
		channel := v.(int64)
		if channel < 0 {
			result.AddError(fmt.Sprintf("channel %d is negative", channel))
		} else if profile.RelayChannels > 0 && channel >= int64(profile.RelayChannels) {
			result.AddWarning(fmt.Sprintf("channel %d exceeds the %d relay channels of %s boards", channel, profile.RelayChannels, profile.Family))
		}

	case model.CommandSetMotorSpeed:
		v, ok := values["speed"]
		if !ok {
			return
		}
		speed := v.(int64)
		if speed < -100 || speed > 100 {
			result.AddError(fmt.Sprintf("speed %d is outside -100..100", speed))
		} else if s.options.MaxSafeMotorSpeed > 0 && abs(speed) > int64(s.options.MaxSafeMotorSpeed) {
			result.AddWarning(fmt.Sprintf("speed %d is above the typical safe maximum of %d", speed, s.options.MaxSafeMotorSpeed))
		}

	case model.CommandEmergencyStop:
		if cmd.Priority != model.PriorityEmergency {
			result.AddWarning(fmt.Sprintf("emergency stop sent with %s priority", cmd.Priority))
		}
	}
}

func checkByte(key string, v int64, result *model.ValidationResult) {
	if v < 0 || v > 255 {
		result.AddError(fmt.Sprintf("%s %d is outside 0..255", key, v))
	}
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
