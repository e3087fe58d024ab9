// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"device-dispatch/internal/config"
	"device-dispatch/internal/model"
)

// LoggerManager manages application logging
type LoggerManager struct {
	logger *zap.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	manager.logger = logger
	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := ParseLevel(lm.config.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	return zap.New(core, lm.getLoggerOptions()...), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	// Console format customizations
	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		// File output with rotation
		if lm.config.Output == "" {
			lm.config.Output = "./logs/device-dispatch.log"
		}

		logDir := filepath.Dir(lm.config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   lm.config.Output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// ParseLevel maps a config level name to a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// getLoggerOptions returns logger options
func (lm *LoggerManager) getLoggerOptions() []zap.Option {
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
}

// DeviceLogger wraps zap.Logger with device-specific fields
type DeviceLogger struct {
	*zap.Logger
	deviceID string
}

// NewDeviceLogger creates a device-specific logger
func NewDeviceLogger(baseLogger *zap.Logger, device model.Device) *DeviceLogger {
	logger := baseLogger.With(
		zap.String("device_id", device.ID),
		zap.String("family", string(device.Family)),
		zap.String("transport", string(device.ConnectionType)),
		zap.String("component", "device"),
	)

	return &DeviceLogger{
		Logger:   logger,
		deviceID: device.ID,
	}
}

// LogFrame logs a frame handed to the transport
func (dl *DeviceLogger) LogFrame(commandID string, format model.SerializationFormat, size int, err error) {
	fields := []zap.Field{
		zap.String("command_id", commandID),
		zap.String("format", string(format)),
		zap.Int("frame_size", size),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Frame send failed", fields...)
	} else {
		dl.Debug("Frame sent", fields...)
	}
}

// LogConnection logs connection events
func (dl *DeviceLogger) LogConnection(action string, success bool, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", success),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Device connection event", fields...)
	} else {
		dl.Info("Device connection event", fields...)
	}
}

// CommandLogger provides structured logging for one command dispatch
type CommandLogger struct {
	logger    *zap.Logger
	startTime time.Time
}

// NewCommandLogger creates a command-specific logger
func NewCommandLogger(baseLogger *zap.Logger, cmd *model.DeviceCommand) *CommandLogger {
	logger := baseLogger.With(
		zap.String("command_id", cmd.ID.String()),
		zap.String("command_type", string(cmd.Type)),
		zap.String("device_id", cmd.DeviceID),
		zap.String("priority", cmd.Priority.String()),
		zap.String("component", "command"),
	)

	return &CommandLogger{
		logger:    logger,
		startTime: time.Now(),
	}
}

// Start logs dispatch start
func (cl *CommandLogger) Start(fields ...zap.Field) {
	cl.logger.Debug("Command dispatch started", fields...)
}

// Warn logs a non-blocking problem found during dispatch
func (cl *CommandLogger) Warn(message string, fields ...zap.Field) {
	cl.logger.Warn(message, fields...)
}

// Success logs successful transmission
func (cl *CommandLogger) Success(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(cl.startTime)),
		zap.Bool("success", true),
	}, fields...)

	cl.logger.Info("Command completed", allFields...)
}

// Error logs dispatch failure
func (cl *CommandLogger) Error(err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(cl.startTime)),
		zap.Bool("success", false),
		zap.Error(err),
	}, fields...)

	cl.logger.Error("Command failed", allFields...)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(method, path, userAgent, clientIP, requestID string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("user_agent", userAgent),
			zap.String("client_ip", clientIP),
			zap.String("request_id", requestID),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// AuditLogger records operator actions that change what devices will do
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit-specific logger
func NewAuditLogger(baseLogger *zap.Logger) *AuditLogger {
	logger := baseLogger.With(
		zap.String("component", "audit"),
	)

	return &AuditLogger{
		logger: logger,
	}
}

// LogCancellation logs a cancel request and its outcome
func (al *AuditLogger) LogCancellation(commandID, clientIP string, cancelled bool) {
	al.logger.Info("Command cancellation",
		zap.String("command_id", commandID),
		zap.String("client_ip", clientIP),
		zap.Bool("cancelled", cancelled),
		zap.String("action", "cancel_command"),
	)
}

// LogQueueCleared logs a device queue purge
func (al *AuditLogger) LogQueueCleared(deviceID, clientIP string, removed int) {
	al.logger.Info("Device queue cleared",
		zap.String("device_id", deviceID),
		zap.String("client_ip", clientIP),
		zap.Int("removed", removed),
		zap.String("action", "clear_queue"),
	)
}

// LogHistoryCleared logs a device history purge
func (al *AuditLogger) LogHistoryCleared(deviceID, clientIP string) {
	al.logger.Info("Device history cleared",
		zap.String("device_id", deviceID),
		zap.String("client_ip", clientIP),
		zap.String("action", "clear_history"),
	)
}

// LogEmergencyStop logs every emergency stop that reached a terminal state
func (al *AuditLogger) LogEmergencyStop(commandID, deviceID string, status model.CommandStatus) {
	al.logger.Warn("Emergency stop",
		zap.String("command_id", commandID),
		zap.String("device_id", deviceID),
		zap.String("status", string(status)),
		zap.String("action", "emergency_stop"),
	)
}

// Helper functions for common logging patterns

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
