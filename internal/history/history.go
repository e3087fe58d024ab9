// Package history keeps a bounded audit trail of command outcomes, per device
// and globally. Entries are snapshots taken at record time and are only ever
// evicted by ring overwrite.
package history

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"device-dispatch/internal/buffer"
	"device-dispatch/internal/model"
)

const (
	DefaultPerDeviceCapacity = 100
	DefaultGlobalCapacity    = 1000
)

// Options sizes the history rings
type Options struct {
	PerDeviceCapacity int
	GlobalCapacity    int
}

// DefaultOptions returns the default ring sizes
func DefaultOptions() Options {
	return Options{
		PerDeviceCapacity: DefaultPerDeviceCapacity,
		GlobalCapacity:    DefaultGlobalCapacity,
	}
}

// Statistics aggregates whatever the global ring currently retains. It is not
// a lifetime total: evicted entries no longer count.
type Statistics struct {
	Total    int                         `json:"total"`
	ByType   map[model.CommandType]int   `json:"by_type"`
	ByDevice map[string]int              `json:"by_device"`
	ByStatus map[model.CommandStatus]int `json:"by_status"`
}

// trail is one ring with its own lock
type trail struct {
	mu   sync.Mutex
	ring *buffer.Ring[*model.DeviceCommand]
}

func (t *trail) add(cmd *model.DeviceCommand) {
	t.mu.Lock()
	t.ring.Add(cmd)
	t.mu.Unlock()
}

func (t *trail) items() []*model.DeviceCommand {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ring.Items()
}

func (t *trail) clear() {
	t.mu.Lock()
	t.ring.Clear()
	t.mu.Unlock()
}

// History records command snapshots. Writes for different devices never
// contend on the same lock.
type History struct {
	perDeviceCapacity int

	mu      sync.RWMutex // guards devices map only
	devices map[string]*trail

	global *trail
	logger *zap.Logger
}

// New creates a history. The global capacity is raised to the per-device
// capacity when configured smaller.
func New(opts Options, logger *zap.Logger) (*History, error) {
	if opts.PerDeviceCapacity < 1 {
		return nil, fmt.Errorf("per-device history capacity must be positive, got %d", opts.PerDeviceCapacity)
	}
	if opts.GlobalCapacity < opts.PerDeviceCapacity {
		logger.Warn("Global history capacity below per-device capacity, raising it",
			zap.Int("global_capacity", opts.GlobalCapacity),
			zap.Int("per_device_capacity", opts.PerDeviceCapacity),
		)
		opts.GlobalCapacity = opts.PerDeviceCapacity
	}

	ring, err := buffer.NewRing[*model.DeviceCommand](opts.GlobalCapacity)
	if err != nil {
		return nil, fmt.Errorf("global history: %w", err)
	}

	return &History{
		perDeviceCapacity: opts.PerDeviceCapacity,
		devices:           make(map[string]*trail),
		global:            &trail{ring: ring},
		logger:            logger.With(zap.String("component", "history")),
	}, nil
}

// Record appends a snapshot of cmd to its device trail and the global trail
func (h *History) Record(cmd *model.DeviceCommand) {
	if cmd == nil {
		return
	}
	snapshot := cmd.Clone()

	h.deviceTrail(snapshot.DeviceID, true).add(snapshot)
	h.global.add(snapshot)
}

func (h *History) deviceTrail(deviceID string, create bool) *trail {
	h.mu.RLock()
	t, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if ok || !create {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.devices[deviceID]; ok {
		return t
	}
	t = &trail{ring: buffer.MustNewRing[*model.DeviceCommand](h.perDeviceCapacity)}
	h.devices[deviceID] = t
	return t
}

// History returns the retained entries of deviceID, most recent first
func (h *History) History(deviceID string) []*model.DeviceCommand {
	t := h.deviceTrail(deviceID, false)
	if t == nil {
		return []*model.DeviceCommand{}
	}
	return newestFirst(t.items(), 0)
}

// Recent returns up to n entries from the global trail, most recent first.
// n <= 0 returns everything retained.
func (h *History) Recent(n int) []*model.DeviceCommand {
	return newestFirst(h.global.items(), n)
}

// newestFirst reverses ring order, sorts by CreatedAt descending and clones.
// Entries with equal CreatedAt keep most-recently-recorded first.
func newestFirst(items []*model.DeviceCommand, limit int) []*model.DeviceCommand {
	out := make([]*model.DeviceCommand, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

// Statistics aggregates the global trail
func (h *History) Statistics() Statistics {
	stats := Statistics{
		ByType:   make(map[model.CommandType]int),
		ByDevice: make(map[string]int),
		ByStatus: make(map[model.CommandStatus]int),
	}
	for _, cmd := range h.global.items() {
		stats.Total++
		stats.ByType[cmd.Type]++
		stats.ByDevice[cmd.DeviceID]++
		stats.ByStatus[cmd.Status]++
	}
	return stats
}

// Clear empties the trail of deviceID. The global trail is untouched.
func (h *History) Clear(deviceID string) {
	t := h.deviceTrail(deviceID, false)
	if t == nil {
		return
	}
	t.clear()
	h.logger.Debug("Device history cleared", zap.String("device_id", deviceID))
}

// Devices lists devices that have a trail, sorted
func (h *History) Devices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.devices))
	for id := range h.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Capacities reports the per-device and global ring sizes
func (h *History) Capacities() (perDevice, global int) {
	return h.perDeviceCapacity, h.global.ring.Capacity()
}
