// internal/serializer/registry.go
package serializer

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// FamilyProfile captures everything the serializer knows about a device family
type FamilyProfile struct {
	Family      model.DeviceFamily
	Description string
	Config      model.SerializationConfig
	Supported   map[model.CommandType]bool
	// MaxPin is the highest GPIO number on the largest board of the family; 0 disables the check.
	MaxPin int
	// RelayChannels is the number of relay outputs; 0 disables the check.
	RelayChannels int
	// ReservedPins must never be driven (flash, boot strapping).
	ReservedPins map[int64]bool
	// InputOnlyPins accept reads but not writes.
	InputOnlyPins map[int64]bool
	// SerialPins are shared with the host UART; writing them works but breaks the link.
	SerialPins map[int64]bool
}

// Supports reports whether the family accepts commandType
func (p *FamilyProfile) Supports(commandType model.CommandType) bool {
	return p.Supported[commandType]
}

// defaultConfig is used for families nobody registered
var defaultConfig = model.SerializationConfig{
	Format:            model.FormatJSON,
	Encoding:          "utf-8",
	IncludeChecksum:   false,
	ChecksumAlgorithm: model.ChecksumNone,
}

// Registry maps device families to their profiles
type Registry struct {
	profiles map[model.DeviceFamily]*FamilyProfile
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewRegistry creates an empty family registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		profiles: make(map[model.DeviceFamily]*FamilyProfile),
		logger:   logger,
	}
}

// Register adds or replaces a family profile
func (r *Registry) Register(profile *FamilyProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[profile.Family] = profile
	r.logger.Info("Device family registered",
		zap.String("family", string(profile.Family)),
		zap.String("format", string(profile.Config.Format)),
		zap.String("checksum", string(profile.Config.ChecksumAlgorithm)),
		zap.Int("commands", len(profile.Supported)),
	)
}

// Profile returns the registered profile for family
func (r *Registry) Profile(family model.DeviceFamily) (*FamilyProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[family]
	return profile, ok
}

// Config returns the serialization config for family, falling back to
// unchecksummed JSON for unknown families
func (r *Registry) Config(family model.DeviceFamily) model.SerializationConfig {
	if profile, ok := r.Profile(family); ok {
		return profile.Config
	}
	return defaultConfig
}

// Families returns all registered families sorted by name
func (r *Registry) Families() []model.DeviceFamily {
	r.mu.RLock()
	defer r.mu.RUnlock()

	families := make([]model.DeviceFamily, 0, len(r.profiles))
	for family := range r.profiles {
		families = append(families, family)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}
