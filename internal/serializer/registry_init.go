// internal/serializer/registry_init.go
package serializer

import (
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// RegisterDefaultFamilies registers the built-in device families
func RegisterDefaultFamilies(registry *Registry, logger *zap.Logger) {
	registerArduino(registry)
	registerESP32(registry)
	registerRioRand(registry)
	registerGeneric(registry)

	logger.Info("Default device families registered",
		zap.Int("families", len(registry.Families())),
	)
}

func commandSet(types ...model.CommandType) map[model.CommandType]bool {
	set := make(map[model.CommandType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func pinSet(pins ...int64) map[int64]bool {
	set := make(map[int64]bool, len(pins))
	for _, p := range pins {
		set[p] = true
	}
	return set
}

// registerArduino registers AVR Arduino boards (Uno, Nano, Mega) speaking
// the line-oriented "$TYPE k=v" protocol over USB serial
func registerArduino(registry *Registry) {
	registry.Register(&FamilyProfile{
		Family:      model.FamilyArduino,
		Description: "Arduino-class AVR boards, native text frames",
		Config: model.SerializationConfig{
			Format:            model.FormatNative,
			Encoding:          "ascii",
			IncludeChecksum:   true,
			ChecksumAlgorithm: model.ChecksumCRC8,
		},
		Supported: commandSet(
			model.CommandDigitalWrite,
			model.CommandDigitalRead,
			model.CommandAnalogRead,
			model.CommandAnalogWrite,
			model.CommandSetPWM,
			model.CommandSetPWMFrequency,
			model.CommandSetRelay,
			model.CommandPing,
			model.CommandGetStatus,
			model.CommandEmergencyStop,
		),
		MaxPin:     69, // Mega 2560: D0-D53 + A0-A15
		SerialPins: pinSet(0, 1),
	})
}

// registerESP32 registers ESP32 boards speaking newline-delimited JSON
func registerESP32(registry *Registry) {
	registry.Register(&FamilyProfile{
		Family:      model.FamilyESP32,
		Description: "ESP32-class boards, JSON frames",
		Config: model.SerializationConfig{
			Format:            model.FormatJSON,
			Encoding:          "utf-8",
			IncludeChecksum:   true,
			ChecksumAlgorithm: model.ChecksumCRC32,
		},
		Supported: commandSet(
			model.CommandDigitalWrite,
			model.CommandDigitalRead,
			model.CommandAnalogRead,
			model.CommandAnalogWrite,
			model.CommandSetPWM,
			model.CommandSetPWMFrequency,
			model.CommandSetRelay,
			model.CommandPing,
			model.CommandGetStatus,
			model.CommandEmergencyStop,
		),
		MaxPin:        39,
		ReservedPins:  pinSet(6, 7, 8, 9, 10, 11), // SPI flash
		InputOnlyPins: pinSet(34, 35, 36, 37, 38, 39),
	})
}

// registerRioRand registers RioRand relay and motor controller boards with a
// compact binary protocol
func registerRioRand(registry *Registry) {
	registry.Register(&FamilyProfile{
		Family:      model.FamilyRioRand,
		Description: "RioRand relay/motor boards, binary frames",
		Config: model.SerializationConfig{
			Format:            model.FormatBinary,
			Encoding:          "binary",
			IncludeChecksum:   true,
			ChecksumAlgorithm: model.ChecksumXOR,
		},
		Supported: commandSet(
			model.CommandSetRelay,
			model.CommandSetMotorSpeed,
			model.CommandSetMotorDirection,
			model.CommandSetPWM,
			model.CommandSetPWMFrequency,
			model.CommandPing,
			model.CommandGetStatus,
			model.CommandEmergencyStop,
		),
		MaxPin:        16,
		RelayChannels: 8,
	})
}

// registerGeneric registers the catch-all profile for devices whose family
// is not known. It accepts every command type and frames as plain JSON.
func registerGeneric(registry *Registry) {
	registry.Register(&FamilyProfile{
		Family:      model.FamilyGeneric,
		Description: "Unknown hardware, unchecksummed JSON frames",
		Config:      defaultConfig,
		Supported:   commandSet(model.AllCommandTypes...),
	})
}
