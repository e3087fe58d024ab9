// internal/model/serialization.go
package model

// SerializationFormat is the frame shape a device family expects
type SerializationFormat string

const (
	FormatJSON   SerializationFormat = "json"
	FormatNative SerializationFormat = "native"
	FormatBinary SerializationFormat = "binary"
)

// ChecksumAlgorithm names the integrity code appended to a frame
type ChecksumAlgorithm string

const (
	ChecksumNone  ChecksumAlgorithm = "none"
	ChecksumCRC8  ChecksumAlgorithm = "crc8"
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	ChecksumXOR   ChecksumAlgorithm = "xor"
)

// SerializationConfig describes how commands for one device family are framed
type SerializationConfig struct {
	Format            SerializationFormat `json:"format"`
	Encoding          string              `json:"encoding"`
	IncludeChecksum   bool                `json:"include_checksum"`
	ChecksumAlgorithm ChecksumAlgorithm   `json:"checksum_algorithm"`
}

// ValidationResult is the outcome of checking a command against a device family.
// Errors block serialization, warnings are informational.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewValidationResult returns a passing result with empty lists
func NewValidationResult() ValidationResult {
	return ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

// AddError records a blocking problem
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a non-blocking observation
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Err converts a failed result into a ValidationError carrying the first problem
func (r ValidationResult) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	return &ValidationError{Message: r.Errors[0]}
}
