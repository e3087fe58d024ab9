package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

func TestMemoryTransport(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryTransport()

	if err := m.Send(ctx, []byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send before Open: got %v, want ErrNotOpen", err)
	}

	m.Open(ctx)
	frame := []byte{0x01, 0x02}
	if err := m.Send(ctx, frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame[0] = 0xFF

	frames := m.Frames()
	if len(frames) != 1 || frames[0][0] != 0x01 {
		t.Fatalf("Frames() = % X, want stored copy", frames)
	}

	stats := m.Stats()
	if stats.FramesSent != 1 || stats.BytesWritten != 2 || !stats.IsConnected {
		t.Errorf("Stats() = %+v", stats)
	}

	boom := errors.New("cable unplugged")
	m.FailWith(boom)
	if err := m.Send(ctx, frame); !errors.Is(err, boom) {
		t.Errorf("Send: got %v, want %v", err, boom)
	}
	if m.Stats().ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", m.Stats().ErrorCount)
	}
}

func TestMemoryTransportHonoursContext(t *testing.T) {
	m := NewMemoryTransport()
	m.Open(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Send with cancelled ctx: got %v", err)
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.ConnectionType
		options model.JSONObject
		wantErr bool
	}{
		{"serial ok", model.ConnectionTypeSerial, model.JSONObject{"port": "/dev/ttyACM0", "baud_rate": 115200}, false},
		{"serial float baud from json", model.ConnectionTypeSerial, model.JSONObject{"port": "/dev/ttyUSB0", "baud_rate": float64(9600)}, false},
		{"serial missing port", model.ConnectionTypeSerial, model.JSONObject{}, true},
		{"serial bad baud", model.ConnectionTypeSerial, model.JSONObject{"port": "COM3", "baud_rate": 1234}, true},
		{"serial bad parity", model.ConnectionTypeSerial, model.JSONObject{"port": "COM3", "parity": "mark"}, true},
		{"tcp ok", model.ConnectionTypeTCP, model.JSONObject{"host": "192.168.4.1", "port": 3333}, false},
		{"tcp missing host", model.ConnectionTypeTCP, model.JSONObject{"port": 3333}, true},
		{"tcp bad port", model.ConnectionTypeTCP, model.JSONObject{"host": "esp", "port": 70000}, true},
		{"usb ok", model.ConnectionTypeUSB, model.JSONObject{"vendor_id": "0x2341", "product_id": "0043"}, false},
		{"usb bad vendor", model.ConnectionTypeUSB, model.JSONObject{"vendor_id": "zz", "product_id": "0043"}, true},
		{"mqtt ok", model.ConnectionTypeMQTT, model.JSONObject{"qos": 1}, false},
		{"mqtt bad qos", model.ConnectionTypeMQTT, model.JSONObject{"qos": 3}, true},
		{"memory", model.ConnectionTypeMemory, nil, false},
		{"unknown", model.ConnectionType("CARRIER_PIGEON"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(tt.typ, tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	logger := zap.NewNop()
	defaults := MQTTDefaults{Broker: "tcp://localhost:1883", ClientID: "dispatch", TopicPrefix: "devices", Timeout: time.Second}

	tests := []struct {
		device model.Device
		want   model.ConnectionType
	}{
		{model.Device{ID: "uno", ConnectionType: model.ConnectionTypeSerial, Options: model.JSONObject{"port": "/dev/ttyACM0"}}, model.ConnectionTypeSerial},
		{model.Device{ID: "esp", ConnectionType: model.ConnectionTypeTCP, Options: model.JSONObject{"host": "10.0.0.5"}}, model.ConnectionTypeTCP},
		{model.Device{ID: "rr", ConnectionType: model.ConnectionTypeUSB, Options: model.JSONObject{"vendor_id": "1a86", "product_id": "7523"}}, model.ConnectionTypeUSB},
		{model.Device{ID: "esp-fleet-1", ConnectionType: model.ConnectionTypeMQTT}, model.ConnectionTypeMQTT},
		{model.Device{ID: "sim", ConnectionType: model.ConnectionTypeMemory}, model.ConnectionTypeMemory},
	}

	for _, tt := range tests {
		t.Run(tt.device.ID, func(t *testing.T) {
			tr, err := Create(tt.device, defaults, logger)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if tr.Type() != tt.want {
				t.Errorf("Type() = %s, want %s", tr.Type(), tt.want)
			}
			if tr.IsOpen() {
				t.Error("new transport reports open")
			}
		})
	}

	if _, err := Create(model.Device{ID: "bad", ConnectionType: model.ConnectionTypeTCP}, defaults, logger); err == nil {
		t.Error("expected error for TCP device without host")
	}
}

func TestMQTTTopic(t *testing.T) {
	tr, err := Create(model.Device{ID: "esp-7", ConnectionType: model.ConnectionTypeMQTT, Options: model.JSONObject{"topic_prefix": "plant/line2"}},
		MQTTDefaults{Broker: "tcp://broker:1883", TopicPrefix: "devices"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	mt := tr.(*MQTTTransport)
	if got := mt.config.Topic(); got != "plant/line2/esp-7/cmd" {
		t.Errorf("Topic() = %s", got)
	}
}

func TestRegistryAcquire(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(zap.NewNop())
	m := NewMemoryTransport()
	r.Register(model.Device{ID: "sim-1", Family: model.FamilyArduino, ConnectionType: model.ConnectionTypeMemory}, m)

	tr, err := r.Acquire(ctx, "sim-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !tr.IsOpen() {
		t.Error("Acquire did not open the transport")
	}

	if _, err := r.Acquire(ctx, "ghost"); !errors.Is(err, model.ErrUnknownDevice) {
		t.Errorf("Acquire(ghost): got %v, want ErrUnknownDevice", err)
	}

	device, ok := r.Device("sim-1")
	if !ok || device.Family != model.FamilyArduino {
		t.Errorf("Device() = %+v, %v", device, ok)
	}

	r.CloseAll()
	if m.IsOpen() {
		t.Error("CloseAll left transport open")
	}
}

func TestRegistryDevicesSorted(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	for _, id := range []string{"c", "a", "b"} {
		r.Register(model.Device{ID: id, ConnectionType: model.ConnectionTypeMemory}, NewMemoryTransport())
	}
	devices := r.Devices()
	if len(devices) != 3 || devices[0].ID != "a" || devices[2].ID != "c" {
		t.Errorf("Devices() = %+v", devices)
	}
}
