// Package serializer validates device commands and encodes them into the
// byte frames each device family expects.
//
// Three frame shapes are supported:
//
//	json    {"type":"DIGITAL_WRITE","deviceId":"esp-1","parameters":{"pin":2,"value":1},"checksum":"A30AAE43"}\n
//	native  $DIGITAL_WRITE pin=13 value=1*1D\r\n
//	binary  [type code][packed parameters][checksum]
//
// Encoding is a pure function of the command and the config: the same input
// always yields the same bytes.
package serializer

import (
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// Options holds the thresholds used by validation
type Options struct {
	// MaxSafePWMFrequency triggers a warning when exceeded (Hz).
	MaxSafePWMFrequency float64
	// PWMFrequencyLimit rejects frequencies above it (Hz).
	PWMFrequencyLimit float64
	// MaxSafeMotorSpeed triggers a warning when |speed| exceeds it (percent).
	MaxSafeMotorSpeed int
}

// DefaultOptions returns the thresholds used when none are configured
func DefaultOptions() Options {
	return Options{
		MaxSafePWMFrequency: 20000,
		PWMFrequencyLimit:   100000,
		MaxSafeMotorSpeed:   80,
	}
}

// Serializer validates and encodes commands per device family
type Serializer struct {
	registry *Registry
	encoders map[model.SerializationFormat]FrameEncoder
	options  Options
	logger   *zap.Logger
}

// New creates a serializer with the built-in families and frame encoders
func New(options Options, logger *zap.Logger) *Serializer {
	registry := NewRegistry(logger)
	RegisterDefaultFamilies(registry, logger)
	return NewWithRegistry(registry, options, logger)
}

// NewWithRegistry creates a serializer over a caller supplied registry
func NewWithRegistry(registry *Registry, options Options, logger *zap.Logger) *Serializer {
	s := &Serializer{
		registry: registry,
		encoders: make(map[model.SerializationFormat]FrameEncoder),
		options:  options,
		logger:   logger.With(zap.String("component", "serializer")),
	}
	s.RegisterEncoder(jsonEncoder{})
	s.RegisterEncoder(nativeEncoder{})
	s.RegisterEncoder(binaryEncoder{})
	return s
}

// RegisterEncoder installs the encoder for its format. Call during setup only.
func (s *Serializer) RegisterEncoder(encoder FrameEncoder) {
	s.encoders[encoder.Format()] = encoder
}

// Registry exposes the family registry
func (s *Serializer) Registry() *Registry {
	return s.registry
}

// GetConfig returns the serialization config for family. Unknown families
// get unchecksummed JSON.
func (s *Serializer) GetConfig(family model.DeviceFamily) model.SerializationConfig {
	return s.registry.Config(family)
}

// Families lists the registered device families
func (s *Serializer) Families() []model.DeviceFamily {
	return s.registry.Families()
}

// Validate checks whether cmd can be sent to a device of the given family
func (s *Serializer) Validate(cmd *model.DeviceCommand, family model.DeviceFamily) model.ValidationResult {
	profile, ok := s.registry.Profile(family)
	if !ok {
		profile, ok = s.registry.Profile(model.FamilyGeneric)
		if !ok {
			profile = &FamilyProfile{Family: model.FamilyGeneric, Config: defaultConfig, Supported: commandSet(model.AllCommandTypes...)}
		}
		result := s.validate(cmd, profile)
		result.Warnings = append([]string{"unknown device family " + string(family) + ", using generic profile"}, result.Warnings...)
		return result
	}
	return s.validate(cmd, profile)
}

// Encode produces the wire frame for cmd. It does not re-run validation but
// fails with a non-retryable SerializationError instead of emitting a
// malformed frame.
func (s *Serializer) Encode(cmd *model.DeviceCommand, cfg model.SerializationConfig) ([]byte, error) {
	encoder, ok := s.encoders[cfg.Format]
	if !ok {
		return nil, encodeError(cmd, cfg.Format, "unsupported format")
	}
	if cfg.IncludeChecksum && cfg.ChecksumAlgorithm == model.ChecksumNone {
		return nil, encodeError(cmd, cfg.Format, "checksum requested without an algorithm")
	}
	return encoder.Encode(cmd, cfg)
}

// ValidateAndEncode validates cmd for family and, when valid, encodes it with
// the family's config. The validation result is always returned.
func (s *Serializer) ValidateAndEncode(cmd *model.DeviceCommand, family model.DeviceFamily) ([]byte, model.ValidationResult, error) {
	result := s.Validate(cmd, family)
	if !result.IsValid {
		return nil, result, result.Err()
	}

	frame, err := s.Encode(cmd, s.GetConfig(family))
	if err != nil {
		s.logger.Error("Encoding failed after successful validation",
			zap.String("command_type", string(cmd.Type)),
			zap.String("family", string(family)),
			zap.Error(err),
		)
		return nil, result, err
	}
	return frame, result, nil
}
