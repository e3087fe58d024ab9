// internal/transport/config.go
package transport

import "time"

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// USBConfig represents USB connection configuration
type USBConfig struct {
	VendorID     string        `json:"vendor_id"`
	ProductID    string        `json:"product_id"`
	Endpoint     int           `json:"endpoint"`
	SerialNumber string        `json:"serial_number"`
	Timeout      time.Duration `json:"timeout"`
}

// TCPConfig represents TCP connection configuration
type TCPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	SSL          bool          `json:"ssl"`
	KeepAlive    bool          `json:"keep_alive"`
	Timeout      time.Duration `json:"timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// MQTTConfig represents MQTT publish configuration. Frames for a device are
// published to "<TopicPrefix>/<DeviceID>/cmd".
type MQTTConfig struct {
	Broker      string        `json:"broker"`
	ClientID    string        `json:"client_id"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	TopicPrefix string        `json:"topic_prefix"`
	DeviceID    string        `json:"device_id"`
	QoS         byte          `json:"qos"`
	Timeout     time.Duration `json:"timeout"`
}

// Topic returns the command topic for the configured device
func (c *MQTTConfig) Topic() string {
	return c.TopicPrefix + "/" + c.DeviceID + "/cmd"
}
