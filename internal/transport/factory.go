// internal/transport/factory.go
package transport

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// MQTTDefaults supplies broker settings shared by every MQTT device
type MQTTDefaults struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// Create builds a transport for device from its connection type and options
func Create(device model.Device, mqttDefaults MQTTDefaults, logger *zap.Logger) (Transport, error) {
	if err := ValidateOptions(device.ConnectionType, device.Options); err != nil {
		return nil, fmt.Errorf("device %s: %w", device.ID, err)
	}

	switch device.ConnectionType {
	case model.ConnectionTypeSerial:
		return createSerial(device.Options, logger), nil
	case model.ConnectionTypeUSB:
		return createUSB(device.Options, logger), nil
	case model.ConnectionTypeTCP:
		return createTCP(device.Options, logger), nil
	case model.ConnectionTypeMQTT:
		return createMQTT(device.ID, device.Options, mqttDefaults, logger), nil
	case model.ConnectionTypeMemory:
		return NewMemoryTransport(), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.ConnectionType)
	}
}

func createSerial(options model.JSONObject, logger *zap.Logger) *SerialTransport {
	config := &SerialConfig{
		Port:     stringOption(options, "port", ""),
		BaudRate: intOption(options, "baud_rate", 9600),
		DataBits: intOption(options, "data_bits", 8),
		StopBits: intOption(options, "stop_bits", 1),
		Parity:   stringOption(options, "parity", "none"),
		Timeout:  durationOption(options, "timeout", 5*time.Second),
	}

	logger.Info("Creating serial transport",
		zap.String("port", config.Port),
		zap.Int("baud_rate", config.BaudRate),
	)
	return NewSerialTransport(config, logger)
}

func createUSB(options model.JSONObject, logger *zap.Logger) *USBTransport {
	config := &USBConfig{
		VendorID:     stringOption(options, "vendor_id", ""),
		ProductID:    stringOption(options, "product_id", ""),
		Endpoint:     intOption(options, "endpoint", 1),
		SerialNumber: stringOption(options, "serial_number", ""),
		Timeout:      durationOption(options, "timeout", 5*time.Second),
	}

	logger.Info("Creating USB transport",
		zap.String("vendor_id", config.VendorID),
		zap.String("product_id", config.ProductID),
	)
	return NewUSBTransport(config, logger)
}

func createTCP(options model.JSONObject, logger *zap.Logger) *TCPTransport {
	config := &TCPConfig{
		Host:         stringOption(options, "host", ""),
		Port:         intOption(options, "port", 3333),
		SSL:          boolOption(options, "ssl", false),
		KeepAlive:    boolOption(options, "keep_alive", true),
		Timeout:      durationOption(options, "timeout", 10*time.Second),
		WriteTimeout: durationOption(options, "write_timeout", 5*time.Second),
	}

	logger.Info("Creating TCP transport",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)
	return NewTCPTransport(config, logger)
}

func createMQTT(deviceID string, options model.JSONObject, defaults MQTTDefaults, logger *zap.Logger) *MQTTTransport {
	config := &MQTTConfig{
		Broker:      stringOption(options, "broker", defaults.Broker),
		ClientID:    stringOption(options, "client_id", defaults.ClientID+"-"+deviceID),
		Username:    stringOption(options, "username", defaults.Username),
		Password:    stringOption(options, "password", defaults.Password),
		TopicPrefix: stringOption(options, "topic_prefix", defaults.TopicPrefix),
		DeviceID:    deviceID,
		QoS:         byte(intOption(options, "qos", int(defaults.QoS))),
		Timeout:     durationOption(options, "timeout", defaults.Timeout),
	}

	logger.Info("Creating MQTT transport",
		zap.String("broker", config.Broker),
		zap.String("topic", config.Topic()),
	)
	return NewMQTTTransport(config, logger)
}

// ValidateOptions validates options for a specific transport type
func ValidateOptions(connectionType model.ConnectionType, options model.JSONObject) error {
	switch connectionType {
	case model.ConnectionTypeSerial:
		return validateSerialOptions(options)
	case model.ConnectionTypeUSB:
		return validateUSBOptions(options)
	case model.ConnectionTypeTCP:
		return validateTCPOptions(options)
	case model.ConnectionTypeMQTT:
		return validateMQTTOptions(options)
	case model.ConnectionTypeMemory:
		return nil
	default:
		return fmt.Errorf("unsupported transport type: %s", connectionType)
	}
}

var validBaudRates = map[int]bool{
	1200: true, 2400: true, 4800: true, 9600: true, 19200: true,
	38400: true, 57600: true, 115200: true, 230400: true, 250000: true,
	460800: true, 921600: true,
}

func validateSerialOptions(options model.JSONObject) error {
	if stringOption(options, "port", "") == "" {
		return fmt.Errorf("serial port is required")
	}
	if _, ok := options["baud_rate"]; ok {
		rate, ok := toInt(options["baud_rate"])
		if !ok {
			return fmt.Errorf("invalid baud_rate type")
		}
		if !validBaudRates[rate] {
			return fmt.Errorf("invalid baud rate: %d", rate)
		}
	}
	if parity := stringOption(options, "parity", "none"); parity != "none" && parity != "odd" && parity != "even" {
		return fmt.Errorf("invalid parity: %s", parity)
	}
	return nil
}

func validateUSBOptions(options model.JSONObject) error {
	for _, key := range []string{"vendor_id", "product_id"} {
		value := stringOption(options, key, "")
		if value == "" {
			return fmt.Errorf("USB %s is required", key)
		}
		if _, err := parseHexID(value); err != nil {
			return fmt.Errorf("invalid USB %s %q: %w", key, value, err)
		}
	}
	return nil
}

func validateTCPOptions(options model.JSONObject) error {
	if stringOption(options, "host", "") == "" {
		return fmt.Errorf("TCP host is required")
	}
	if _, ok := options["port"]; ok {
		port, ok := toInt(options["port"])
		if !ok {
			return fmt.Errorf("invalid port type")
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d", port)
		}
	}
	return nil
}

func validateMQTTOptions(options model.JSONObject) error {
	if _, ok := options["qos"]; ok {
		qos, ok := toInt(options["qos"])
		if !ok || qos < 0 || qos > 2 {
			return fmt.Errorf("invalid qos: %v", options["qos"])
		}
	}
	return nil
}

// Option helpers accept the loose types produced by viper and JSON decoding

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}

func intOption(options model.JSONObject, key string, fallback int) int {
	if n, ok := toInt(options[key]); ok {
		return n
	}
	return fallback
}

func stringOption(options model.JSONObject, key, fallback string) string {
	if s, ok := options[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolOption(options model.JSONObject, key string, fallback bool) bool {
	if b, ok := options[key].(bool); ok {
		return b
	}
	return fallback
}

func durationOption(options model.JSONObject, key string, fallback time.Duration) time.Duration {
	switch v := options[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	}
	return fallback
}
