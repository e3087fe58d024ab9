// internal/transport/tcp.go
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// TCPTransport sends frames over a TCP socket (ESP32 Wi-Fi bridges, serial
// servers)
type TCPTransport struct {
	statsRecorder

	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
}

// NewTCPTransport creates a new TCP transport
func NewTCPTransport(config *TCPConfig, logger *zap.Logger) *TCPTransport {
	return &TCPTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

func (tt *TCPTransport) address() string {
	return net.JoinHostPort(tt.config.Host, strconv.Itoa(tt.config.Port))
}

// Open dials the device
func (tt *TCPTransport) Open(ctx context.Context) error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if tt.isOpen {
		return nil
	}

	tt.logger.Info("Opening TCP connection", zap.Bool("ssl", tt.config.SSL))

	dialer := &net.Dialer{Timeout: tt.config.Timeout}
	if tt.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	var conn net.Conn
	var err error
	if tt.config.SSL {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: tt.config.Host},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", tt.address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", tt.address())
	}
	if err != nil {
		tt.recordError()
		return fmt.Errorf("failed to connect to %s: %w", tt.address(), err)
	}

	tt.conn = conn
	tt.isOpen = true
	tt.setConnected(true)

	tt.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the connection
func (tt *TCPTransport) Close() error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if !tt.isOpen || tt.conn == nil {
		return nil
	}

	err := tt.conn.Close()
	tt.conn = nil
	tt.isOpen = false
	tt.setConnected(false)
	if err != nil {
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tt.logger.Info("TCP connection closed")
	return nil
}

// IsOpen returns whether the connection is open
func (tt *TCPTransport) IsOpen() bool {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()
	return tt.isOpen && tt.conn != nil
}

// Send writes one frame, bounded by the write timeout and ctx deadline
func (tt *TCPTransport) Send(ctx context.Context, frame []byte) error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if !tt.isOpen || tt.conn == nil {
		return fmt.Errorf("TCP connection to %s not open", tt.address())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var deadline time.Time
	if tt.config.WriteTimeout > 0 {
		deadline = time.Now().Add(tt.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := tt.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	startTime := time.Now()
	n, err := tt.conn.Write(frame)
	if err != nil {
		tt.recordError()
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}
	if n != len(frame) {
		tt.recordError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))
	}

	tt.recordSend(n, time.Since(startTime))
	tt.logger.Debug("TCP frame sent", zap.Int("bytes", n))
	return nil
}

// Type returns the connection type
func (tt *TCPTransport) Type() model.ConnectionType {
	return model.ConnectionTypeTCP
}
