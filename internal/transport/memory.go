// internal/transport/memory.go
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"device-dispatch/internal/model"
)

// ErrNotOpen is returned by MemoryTransport.Send before Open
var ErrNotOpen = errors.New("transport not open")

// MemoryTransport records frames in process. It backs dry-run devices and
// tests.
type MemoryTransport struct {
	statsRecorder

	mutex   sync.Mutex
	isOpen  bool
	frames  [][]byte
	failErr error
	notify  chan struct{}
}

// NewMemoryTransport creates an in-memory transport
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{notify: make(chan struct{}, 1)}
}

// Open marks the transport open
func (m *MemoryTransport) Open(ctx context.Context) error {
	m.mutex.Lock()
	m.isOpen = true
	m.mutex.Unlock()
	m.setConnected(true)
	return nil
}

// Close marks the transport closed
func (m *MemoryTransport) Close() error {
	m.mutex.Lock()
	m.isOpen = false
	m.mutex.Unlock()
	m.setConnected(false)
	return nil
}

// IsOpen returns whether the transport is open
func (m *MemoryTransport) IsOpen() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.isOpen
}

// Send stores a copy of frame, or returns the configured failure
func (m *MemoryTransport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	if !m.isOpen {
		m.mutex.Unlock()
		return ErrNotOpen
	}
	if m.failErr != nil {
		err := m.failErr
		m.mutex.Unlock()
		m.recordError()
		return err
	}
	m.frames = append(m.frames, append([]byte(nil), frame...))
	m.mutex.Unlock()

	m.recordSend(len(frame), time.Microsecond)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// FailWith makes every following Send return err. nil restores success.
func (m *MemoryTransport) FailWith(err error) {
	m.mutex.Lock()
	m.failErr = err
	m.mutex.Unlock()
}

// Frames returns copies of all frames sent so far
func (m *MemoryTransport) Frames() [][]byte {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([][]byte, len(m.frames))
	for i, f := range m.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Sent signals after each successful Send. Signals coalesce.
func (m *MemoryTransport) Sent() <-chan struct{} {
	return m.notify
}

// Type returns the connection type
func (m *MemoryTransport) Type() model.ConnectionType {
	return model.ConnectionTypeMemory
}
