// internal/transport/mqtt.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// MQTTTransport publishes frames to a per-device command topic. ESP32 fleets
// subscribe to "<prefix>/<device>/cmd".
type MQTTTransport struct {
	statsRecorder

	config *MQTTConfig
	client mqtt.Client
	logger *zap.Logger
	mutex  sync.Mutex
}

// NewMQTTTransport creates a new MQTT transport
func NewMQTTTransport(config *MQTTConfig, logger *zap.Logger) *MQTTTransport {
	return &MQTTTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "mqtt"),
			zap.String("broker", config.Broker),
			zap.String("topic", config.Topic()),
		),
	}
}

// Open connects to the broker
func (mt *MQTTTransport) Open(ctx context.Context) error {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	if mt.client != nil && mt.client.IsConnected() {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(mt.config.Broker).
		SetClientID(mt.config.ClientID).
		SetAutoReconnect(false).
		SetConnectTimeout(mt.config.Timeout)
	if mt.config.Username != "" {
		opts.SetUsername(mt.config.Username)
		opts.SetPassword(mt.config.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		mt.setConnected(false)
		mt.logger.Warn("MQTT connection lost", zap.Error(err))
	})

	mt.logger.Info("Connecting to MQTT broker")

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), mt.config.Timeout); err != nil {
		mt.recordError()
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", mt.config.Broker, err)
	}

	mt.client = client
	mt.setConnected(true)
	mt.logger.Info("MQTT connection established")
	return nil
}

// Close disconnects from the broker
func (mt *MQTTTransport) Close() error {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	if mt.client == nil {
		return nil
	}
	mt.client.Disconnect(250)
	mt.client = nil
	mt.setConnected(false)

	mt.logger.Info("MQTT connection closed")
	return nil
}

// IsOpen returns whether the client is connected
func (mt *MQTTTransport) IsOpen() bool {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()
	return mt.client != nil && mt.client.IsConnected()
}

// Send publishes one frame and waits for the broker to accept it
func (mt *MQTTTransport) Send(ctx context.Context, frame []byte) error {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	if mt.client == nil || !mt.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	startTime := time.Now()
	token := mt.client.Publish(mt.config.Topic(), mt.config.QoS, false, frame)
	if err := waitToken(ctx, token, mt.config.Timeout); err != nil {
		mt.recordError()
		return fmt.Errorf("failed to publish to %s: %w", mt.config.Topic(), err)
	}

	mt.recordSend(len(frame), time.Since(startTime))
	mt.logger.Debug("MQTT frame published", zap.Int("bytes", len(frame)))
	return nil
}

// Type returns the connection type
func (mt *MQTTTransport) Type() model.ConnectionType {
	return model.ConnectionTypeMQTT
}

// waitToken waits for token completion, ctx cancellation or timeout
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}
