// internal/discovery/database.go
package discovery

import (
	"strconv"
	"strings"

	"device-dispatch/internal/model"
)

// VendorInfo describes a USB vendor seen on microcontroller boards
type VendorInfo struct {
	Name     string
	Family   model.DeviceFamily
	products map[uint16]*ProductInfo
	// Confidence applies to products of this vendor missing from products
	Confidence float64
}

// ProductInfo identifies a specific board or USB bridge
type ProductInfo struct {
	Model      string
	Family     model.DeviceFamily
	BaudRate   int
	Confidence float64
}

// Identification is the result of a VID/PID lookup
type Identification struct {
	Family      model.DeviceFamily
	Description string
	BaudRate    int
	Confidence  float64
}

// DeviceDatabase maps USB vendor and product ids to device families
type DeviceDatabase struct {
	vendors map[uint16]*VendorInfo
}

// NewDeviceDatabase creates and initializes the device database
func NewDeviceDatabase() *DeviceDatabase {
	db := &DeviceDatabase{
		vendors: make(map[uint16]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *DeviceDatabase) initializeDatabase() {
	db.vendors[0x2341] = &VendorInfo{
		Name:       "Arduino SA",
		Family:     model.FamilyArduino,
		Confidence: 0.9,
		products: map[uint16]*ProductInfo{
			0x0043: {Model: "Arduino Uno R3", Family: model.FamilyArduino, BaudRate: 9600, Confidence: 0.95},
			0x0042: {Model: "Arduino Mega 2560 R3", Family: model.FamilyArduino, BaudRate: 9600, Confidence: 0.95},
			0x0058: {Model: "Arduino Nano Every", Family: model.FamilyArduino, BaudRate: 9600, Confidence: 0.95},
			0x8036: {Model: "Arduino Leonardo", Family: model.FamilyArduino, BaudRate: 9600, Confidence: 0.9},
		},
	}
	db.vendors[0x2A03] = &VendorInfo{
		Name:       "Arduino SRL",
		Family:     model.FamilyArduino,
		Confidence: 0.85,
		products:   map[uint16]*ProductInfo{},
	}
	db.vendors[0x303A] = &VendorInfo{
		Name:       "Espressif Systems",
		Family:     model.FamilyESP32,
		Confidence: 0.9,
		products: map[uint16]*ProductInfo{
			0x1001: {Model: "ESP32-S3/C3 USB JTAG serial", Family: model.FamilyESP32, BaudRate: 115200, Confidence: 0.95},
		},
	}
	// USB-UART bridges: the board behind them is a guess
	db.vendors[0x10C4] = &VendorInfo{
		Name:       "Silicon Labs",
		Family:     model.FamilyGeneric,
		Confidence: 0.3,
		products: map[uint16]*ProductInfo{
			0xEA60: {Model: "CP210x UART bridge", Family: model.FamilyESP32, BaudRate: 115200, Confidence: 0.6},
		},
	}
	db.vendors[0x1A86] = &VendorInfo{
		Name:       "QinHeng Electronics",
		Family:     model.FamilyGeneric,
		Confidence: 0.3,
		products: map[uint16]*ProductInfo{
			0x7523: {Model: "CH340 serial converter", Family: model.FamilyArduino, BaudRate: 9600, Confidence: 0.5},
			0x55D4: {Model: "CH9102 serial converter", Family: model.FamilyESP32, BaudRate: 115200, Confidence: 0.5},
		},
	}
	db.vendors[0x0403] = &VendorInfo{
		Name:       "FTDI",
		Family:     model.FamilyGeneric,
		Confidence: 0.3,
		products: map[uint16]*ProductInfo{
			0x6001: {Model: "FT232 serial converter", Family: model.FamilyGeneric, BaudRate: 9600, Confidence: 0.4},
		},
	}
}

// Identify looks up a VID/PID pair. ok is false for unknown vendors.
func (db *DeviceDatabase) Identify(vendorID, productID uint16) (Identification, bool) {
	vendor, ok := db.vendors[vendorID]
	if !ok {
		return Identification{}, false
	}

	if product, ok := vendor.products[productID]; ok {
		return Identification{
			Family:      product.Family,
			Description: vendor.Name + " " + product.Model,
			BaudRate:    product.BaudRate,
			Confidence:  product.Confidence,
		}, true
	}

	baudRate := 9600
	if vendor.Family == model.FamilyESP32 {
		baudRate = 115200
	}
	return Identification{
		Family:      vendor.Family,
		Description: vendor.Name,
		BaudRate:    baudRate,
		Confidence:  vendor.Confidence,
	}, true
}

// parseHexID parses "2341" or "0x2341"
func parseHexID(s string) (uint16, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
