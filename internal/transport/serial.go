// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// SerialTransport sends frames over a UART or USB-CDC serial port
type SerialTransport struct {
	statsRecorder

	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
}

// NewSerialTransport creates a new serial transport
func NewSerialTransport(config *SerialConfig, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

func serialMode(config *SerialConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: serial.OneStopBit,
	}
	if config.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode
}

// Open opens the serial port
func (st *SerialTransport) Open(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.isOpen {
		return nil
	}

	st.logger.Info("Opening serial port", zap.Int("baud_rate", st.config.BaudRate))

	port, err := serial.Open(st.config.Port, serialMode(st.config))
	if err != nil {
		st.recordError()
		return fmt.Errorf("failed to open serial port %s: %w", st.config.Port, err)
	}

	if st.config.Timeout > 0 {
		if err := port.SetReadTimeout(st.config.Timeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	st.port = port
	st.isOpen = true
	st.setConnected(true)

	st.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port
func (st *SerialTransport) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil
	}

	err := st.port.Close()
	st.port = nil
	st.isOpen = false
	st.setConnected(false)
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	st.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the port is open
func (st *SerialTransport) IsOpen() bool {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.isOpen && st.port != nil
}

// Send writes one frame. Frames are never interleaved.
func (st *SerialTransport) Send(ctx context.Context, frame []byte) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return fmt.Errorf("serial port %s not open", st.config.Port)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	n, err := st.port.Write(frame)
	if err != nil {
		st.recordError()
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	if n != len(frame) {
		st.recordError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))
	}
	if err := st.port.Drain(); err != nil {
		st.logger.Warn("Serial drain failed", zap.Error(err))
	}

	st.recordSend(n, time.Since(startTime))
	st.logger.Debug("Serial frame sent", zap.Int("bytes", n))
	return nil
}

// Type returns the connection type
func (st *SerialTransport) Type() model.ConnectionType {
	return model.ConnectionTypeSerial
}
