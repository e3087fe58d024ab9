// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// DeviceScanner enumerates attached hardware of one connection type
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDevice is an attached device with the transport options needed
// to address it and the family it most likely belongs to
type DiscoveredDevice struct {
	ConnectionType model.ConnectionType `json:"connection_type"`
	Options        model.JSONObject     `json:"options"`
	Family         model.DeviceFamily   `json:"family"`
	Description    string               `json:"description,omitempty"`
	VendorID       string               `json:"vendor_id,omitempty"`
	ProductID      string               `json:"product_id,omitempty"`
	SerialNumber   string               `json:"serial_number,omitempty"`
	Confidence     float64              `json:"confidence"` // 0.0-1.0
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped. Results are ordered by confidence, most likely first.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDevice, error) {
	allDevices := make([]*DiscoveredDevice, 0)

	for _, scannerType := range sm.types() {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}
		if err := ctx.Err(); err != nil {
			return allDevices, err
		}

		devices, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		allDevices = append(allDevices, devices...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(devices)),
		)
	}

	sortByConfidence(allDevices)
	return allDevices, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	devices, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	sortByConfidence(devices)
	return devices, nil
}

// GetAvailableScanners returns the available scanner types, sorted
func (sm *ScannerManager) GetAvailableScanners() []string {
	available := make([]string, 0, len(sm.scanners))
	for _, scannerType := range sm.types() {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) types() []string {
	types := make([]string, 0, len(sm.scanners))
	for scannerType := range sm.scanners {
		types = append(types, scannerType)
	}
	sort.Strings(types)
	return types
}

func sortByConfidence(devices []*DiscoveredDevice) {
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
}
