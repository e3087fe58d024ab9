// internal/transport/usb.go
package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// USBTransport sends frames to a bulk OUT endpoint of a raw USB device
type USBTransport struct {
	statsRecorder

	config   *USBConfig
	ctx      *gousb.Context
	device   *gousb.Device
	intf     *gousb.Interface
	release  func()
	outEndpt *gousb.OutEndpoint
	logger   *zap.Logger
	mutex    sync.Mutex
	isOpen   bool
}

// NewUSBTransport creates a new USB transport
func NewUSBTransport(config *USBConfig, logger *zap.Logger) *USBTransport {
	return &USBTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "usb"),
			zap.String("vendor_id", config.VendorID),
			zap.String("product_id", config.ProductID),
		),
	}
}

// Open finds the device and claims its default interface
func (ut *USBTransport) Open(ctx context.Context) error {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()

	if ut.isOpen {
		return nil
	}

	vendorID, err := parseHexID(ut.config.VendorID)
	if err != nil {
		return fmt.Errorf("invalid vendor ID: %w", err)
	}
	productID, err := parseHexID(ut.config.ProductID)
	if err != nil {
		return fmt.Errorf("invalid product ID: %w", err)
	}

	ut.logger.Info("Opening USB device", zap.Int("endpoint", ut.config.Endpoint))

	usbCtx := gousb.NewContext()
	device, err := usbCtx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil || device == nil {
		usbCtx.Close()
		ut.recordError()
		if err == nil {
			err = fmt.Errorf("not found")
		}
		return fmt.Errorf("failed to open USB device %04X:%04X: %w", vendorID, productID, err)
	}

	if ut.config.SerialNumber != "" {
		serialNumber, err := device.SerialNumber()
		if err != nil || serialNumber != ut.config.SerialNumber {
			device.Close()
			usbCtx.Close()
			return fmt.Errorf("USB device %04X:%04X serial number mismatch", vendorID, productID)
		}
	}

	intf, release, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	outEndpt, err := intf.OutEndpoint(ut.config.Endpoint)
	if err != nil {
		release()
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("failed to get out endpoint %d: %w", ut.config.Endpoint, err)
	}

	ut.ctx = usbCtx
	ut.device = device
	ut.intf = intf
	ut.release = release
	ut.outEndpt = outEndpt
	ut.isOpen = true
	ut.setConnected(true)

	ut.logger.Info("USB device opened successfully")
	return nil
}

// Close releases the interface, device and context
func (ut *USBTransport) Close() error {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()

	if !ut.isOpen {
		return nil
	}

	if ut.release != nil {
		ut.release()
		ut.release = nil
	}
	if ut.device != nil {
		ut.device.Close()
		ut.device = nil
	}
	if ut.ctx != nil {
		ut.ctx.Close()
		ut.ctx = nil
	}

	ut.intf = nil
	ut.outEndpt = nil
	ut.isOpen = false
	ut.setConnected(false)

	ut.logger.Info("USB device closed")
	return nil
}

// IsOpen returns whether the device is open
func (ut *USBTransport) IsOpen() bool {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()
	return ut.isOpen && ut.outEndpt != nil
}

// Send writes one frame to the OUT endpoint
func (ut *USBTransport) Send(ctx context.Context, frame []byte) error {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()

	if !ut.isOpen || ut.outEndpt == nil {
		return fmt.Errorf("USB device not open")
	}

	if ut.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ut.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	n, err := ut.outEndpt.WriteContext(ctx, frame)
	if err != nil {
		ut.recordError()
		return fmt.Errorf("failed to write to USB device: %w", err)
	}
	if n != len(frame) {
		ut.recordError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))
	}

	ut.recordSend(n, time.Since(startTime))
	ut.logger.Debug("USB frame sent", zap.Int("bytes", n))
	return nil
}

// Type returns the connection type
func (ut *USBTransport) Type() model.ConnectionType {
	return model.ConnectionTypeUSB
}

// parseHexID parses hex ID string (0x1234 or 1234)
func parseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.ToLower(hexStr), "0x")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}
