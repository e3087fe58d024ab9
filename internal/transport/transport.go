// Package transport moves encoded frames to devices. It is the byte-pipe
// boundary of the dispatcher: a transport accepts a frame and reports
// success or failure. Retry and reconnection policy is left to the caller.
package transport

import (
	"context"
	"sync"
	"time"

	"device-dispatch/internal/model"
)

// Transport sends frames to one device
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Send writes one complete frame
	Send(ctx context.Context, frame []byte) error

	Type() model.ConnectionType
	Stats() Stats
}

// Stats provides transport-level statistics
type Stats struct {
	BytesWritten   int64         `json:"bytes_written"`
	FramesSent     int64         `json:"frames_sent"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// statsRecorder is embedded by transports to track Stats under its own lock
type statsRecorder struct {
	statsMu sync.Mutex
	stats   Stats
}

func (s *statsRecorder) recordSend(bytes int, latency time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.BytesWritten += int64(bytes)
	s.stats.FramesSent++
	s.stats.LastActivity = time.Now()
	if s.stats.AverageLatency == 0 {
		s.stats.AverageLatency = latency
	} else {
		s.stats.AverageLatency = (s.stats.AverageLatency + latency) / 2
	}
}

func (s *statsRecorder) recordError() {
	s.statsMu.Lock()
	s.stats.ErrorCount++
	s.statsMu.Unlock()
}

func (s *statsRecorder) setConnected(connected bool) {
	s.statsMu.Lock()
	s.stats.IsConnected = connected
	if connected {
		s.stats.LastActivity = time.Now()
	}
	s.statsMu.Unlock()
}

// Stats returns a copy of the current statistics
func (s *statsRecorder) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}
