// internal/transport/registry.go
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

type entry struct {
	device    model.Device
	transport Transport
}

// Registry maps device ids to their device description and transport
type Registry struct {
	entries map[string]*entry
	mutex   sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds or replaces a device and its transport
func (r *Registry) Register(device model.Device, transport Transport) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.entries[device.ID] = &entry{device: device, transport: transport}
	r.logger.Info("Device registered",
		zap.String("device_id", device.ID),
		zap.String("family", string(device.Family)),
		zap.String("transport", string(transport.Type())),
	)
}

// Device returns the registered device description
func (r *Registry) Device(deviceID string) (model.Device, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.entries[deviceID]
	if !ok {
		return model.Device{}, false
	}
	return e.device, true
}

// Devices returns every registered device sorted by id
func (r *Registry) Devices() []model.Device {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]model.Device, 0, len(r.entries))
	for _, e := range r.entries {
		devices = append(devices, e.device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// Stats returns transport statistics for a device
func (r *Registry) Stats(deviceID string) (Stats, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.entries[deviceID]
	if !ok {
		return Stats{}, false
	}
	return e.transport.Stats(), true
}

// Acquire returns an open transport for deviceID, opening it on first use
func (r *Registry) Acquire(ctx context.Context, deviceID string) (Transport, error) {
	r.mutex.RLock()
	e, ok := r.entries[deviceID]
	r.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownDevice, deviceID)
	}

	if !e.transport.IsOpen() {
		if err := e.transport.Open(ctx); err != nil {
			return nil, fmt.Errorf("open transport for %s: %w", deviceID, err)
		}
	}
	return e.transport, nil
}

// CloseAll closes every open transport
func (r *Registry) CloseAll() {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for id, e := range r.entries {
		if !e.transport.IsOpen() {
			continue
		}
		if err := e.transport.Close(); err != nil {
			r.logger.Error("Failed to close transport",
				zap.String("device_id", id),
				zap.Error(err),
			)
		}
	}
}
