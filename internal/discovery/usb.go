// internal/discovery/usb.go
package discovery

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// USBScanner enumerates USB descriptors for raw USB transports
type USBScanner struct {
	database *DeviceDatabase
	logger   *zap.Logger
}

// NewUSBScanner creates a new USB scanner
func NewUSBScanner(logger *zap.Logger) *USBScanner {
	return &USBScanner{
		database: NewDeviceDatabase(),
		logger:   logger.With(zap.String("scanner", "usb")),
	}
}

// GetScannerType returns scanner type
func (s *USBScanner) GetScannerType() string {
	return "usb"
}

// IsAvailable checks whether libusb can be initialised
func (s *USBScanner) IsAvailable() (available bool) {
	// gousb.NewContext panics when libusb cannot be initialised
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("libusb unavailable", zap.Any("panic", r))
			available = false
		}
	}()

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	_, err := usbCtx.OpenDevices(func(*gousb.DeviceDesc) bool { return false })
	if err != nil {
		s.logger.Debug("USB enumeration unavailable", zap.Error(err))
		return false
	}
	return true
}

// Scan reads descriptors of attached devices from known vendors. No device
// is opened.
func (s *USBScanner) Scan(ctx context.Context) ([]*DiscoveredDevice, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var discovered []*DiscoveredDevice
	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		if device := s.identify(desc); device != nil {
			discovered = append(discovered, device)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return discovered, err
	}

	s.logger.Info("USB scan completed", zap.Int("devices_found", len(discovered)))
	return discovered, nil
}

func (s *USBScanner) identify(desc *gousb.DeviceDesc) *DiscoveredDevice {
	id, ok := s.database.Identify(uint16(desc.Vendor), uint16(desc.Product))
	if !ok {
		return nil
	}

	return &DiscoveredDevice{
		ConnectionType: model.ConnectionTypeUSB,
		Options: model.JSONObject{
			"vendor_id":  desc.Vendor.String(),
			"product_id": desc.Product.String(),
		},
		Family:      id.Family,
		Description: fmt.Sprintf("%s (bus %d, address %d)", id.Description, desc.Bus, desc.Address),
		VendorID:    desc.Vendor.String(),
		ProductID:   desc.Product.String(),
		Confidence:  id.Confidence,
	}
}
