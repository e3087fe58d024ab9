// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"device-dispatch/internal/model"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Queue      QueueConfig      `mapstructure:"queue"`
	History    HistoryConfig    `mapstructure:"history"`
	Serializer SerializerConfig `mapstructure:"serializer"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Security   SecurityConfig   `mapstructure:"security"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Devices    []DeviceConfig   `mapstructure:"devices"`
	App        AppConfig        `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// QueueConfig bounds the pending command queue. MaxSize 0 means unbounded.
type QueueConfig struct {
	MaxSize int `mapstructure:"max_size"`
}

// HistoryConfig sets the ring capacities of the command history
type HistoryConfig struct {
	PerDeviceCapacity int `mapstructure:"per_device_capacity"`
	GlobalCapacity    int `mapstructure:"global_capacity"`
}

// SerializerConfig holds validation thresholds
type SerializerConfig struct {
	MaxSafePWMFrequency float64 `mapstructure:"max_safe_pwm_frequency"`
	PWMFrequencyLimit   float64 `mapstructure:"pwm_frequency_limit"`
	MaxSafeMotorSpeed   int     `mapstructure:"max_safe_motor_speed"`
}

// DispatcherConfig controls the dispatch worker loop
type DispatcherConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	EventBuffer  int           `mapstructure:"event_buffer"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MQTTConfig holds broker defaults shared by MQTT devices
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         int           `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DeviceConfig describes one addressable device
type DeviceConfig struct {
	ID        string                 `mapstructure:"id"`
	Name      string                 `mapstructure:"name"`
	Family    string                 `mapstructure:"family"`
	Transport string                 `mapstructure:"transport"`
	Options   map[string]interface{} `mapstructure:"options"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load reads .env, config.yaml and DEVICE_DISPATCH_* environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./internal/config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return load(v)
}

// LoadFile reads configuration from an explicit path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("DEVICE_DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("queue.max_size", 0)

	v.SetDefault("history.per_device_capacity", 100)
	v.SetDefault("history.global_capacity", 1000)

	v.SetDefault("serializer.max_safe_pwm_frequency", 20000)
	v.SetDefault("serializer.pwm_frequency_limit", 100000)
	v.SetDefault("serializer.max_safe_motor_speed", 80)

	// Dispatcher defaults
	v.SetDefault("dispatcher.enabled", true)
	v.SetDefault("dispatcher.workers", 1)
	v.SetDefault("dispatcher.poll_interval", "50ms")
	v.SetDefault("dispatcher.send_timeout", "5s")
	v.SetDefault("dispatcher.event_buffer", 256)

	v.SetDefault("security.allowed_origins", []string{"*"})

	// MQTT defaults
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "device-dispatch")
	v.SetDefault("mqtt.topic_prefix", "devices")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.timeout", "5s")

	// App defaults
	v.SetDefault("app.name", "device-dispatch")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if config.Queue.MaxSize < 0 {
		return fmt.Errorf("queue.max_size must not be negative")
	}
	if config.History.PerDeviceCapacity < 1 {
		return fmt.Errorf("history.per_device_capacity must be at least 1")
	}
	if config.History.GlobalCapacity < 1 {
		return fmt.Errorf("history.global_capacity must be at least 1")
	}

	if config.Serializer.MaxSafePWMFrequency <= 0 || config.Serializer.PWMFrequencyLimit <= 0 {
		return fmt.Errorf("serializer PWM thresholds must be positive")
	}
	if config.Serializer.MaxSafePWMFrequency > config.Serializer.PWMFrequencyLimit {
		return fmt.Errorf("serializer.max_safe_pwm_frequency must not exceed serializer.pwm_frequency_limit")
	}
	if config.Serializer.MaxSafeMotorSpeed < 0 || config.Serializer.MaxSafeMotorSpeed > 100 {
		return fmt.Errorf("serializer.max_safe_motor_speed must be within 0..100")
	}

	if config.Dispatcher.Workers < 1 {
		return fmt.Errorf("dispatcher.workers must be at least 1")
	}
	if config.Dispatcher.PollInterval <= 0 {
		return fmt.Errorf("dispatcher.poll_interval must be positive")
	}

	if config.MQTT.QoS < 0 || config.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	seen := make(map[string]bool, len(config.Devices))
	for i, device := range config.Devices {
		if device.ID == "" {
			return fmt.Errorf("devices[%d].id is required", i)
		}
		if seen[device.ID] {
			return fmt.Errorf("duplicate device id: %s", device.ID)
		}
		seen[device.ID] = true
		if device.Transport == "" {
			return fmt.Errorf("devices[%d].transport is required", i)
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// ToModel converts the configured entry into a device description
func (d DeviceConfig) ToModel() model.Device {
	return model.Device{
		ID:             d.ID,
		Name:           d.Name,
		Family:         model.ParseDeviceFamily(d.Family),
		ConnectionType: model.ConnectionType(strings.ToUpper(d.Transport)),
		Options:        model.JSONObject(d.Options),
	}
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
