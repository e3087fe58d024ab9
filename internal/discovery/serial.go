// internal/discovery/serial.go
package discovery

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// PortLister enumerates serial ports. enumerator.GetDetailedPortsList in production.
type PortLister func() ([]*enumerator.PortDetails, error)

// SerialScanner lists serial ports and identifies USB-backed ones
type SerialScanner struct {
	list     PortLister
	database *DeviceDatabase
	// IncludeUnknown also reports ports whose vendor is not in the database
	IncludeUnknown bool
	logger         *zap.Logger
}

// NewSerialScanner creates a scanner over the system serial ports
func NewSerialScanner(logger *zap.Logger) *SerialScanner {
	return NewSerialScannerWithLister(enumerator.GetDetailedPortsList, logger)
}

// NewSerialScannerWithLister creates a scanner using list to enumerate ports
func NewSerialScannerWithLister(list PortLister, logger *zap.Logger) *SerialScanner {
	return &SerialScanner{
		list:     list,
		database: NewDeviceDatabase(),
		logger:   logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *SerialScanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *SerialScanner) IsAvailable() bool {
	return s.list != nil
}

// Scan enumerates serial ports. Ports are only listed, never opened.
func (s *SerialScanner) Scan(ctx context.Context) ([]*DiscoveredDevice, error) {
	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	discovered := make([]*DiscoveredDevice, 0, len(ports))
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		if device := s.identifyPort(port); device != nil {
			discovered = append(discovered, device)
		}
	}

	s.logger.Info("Serial scan completed",
		zap.Int("ports", len(ports)),
		zap.Int("devices_found", len(discovered)),
	)
	return discovered, nil
}

func (s *SerialScanner) identifyPort(port *enumerator.PortDetails) *DiscoveredDevice {
	device := &DiscoveredDevice{
		ConnectionType: model.ConnectionTypeSerial,
		Options:        model.JSONObject{"port": port.Name, "baud_rate": 9600},
		Family:         model.FamilyGeneric,
		Description:    "serial port " + port.Name,
		Confidence:     0.1,
	}

	if port.IsUSB {
		device.VendorID = strings.ToLower(port.VID)
		device.ProductID = strings.ToLower(port.PID)
		device.SerialNumber = port.SerialNumber

		vid, vidOK := parseHexID(port.VID)
		pid, pidOK := parseHexID(port.PID)
		if vidOK && pidOK {
			if id, ok := s.database.Identify(vid, pid); ok {
				device.Family = id.Family
				device.Description = id.Description
				device.Confidence = id.Confidence
				device.Options["baud_rate"] = id.BaudRate
				return device
			}
		}
	}

	if !s.IncludeUnknown {
		return nil
	}
	return device
}
