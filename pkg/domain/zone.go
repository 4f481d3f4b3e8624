package domain

import dErrors "permis/pkg/domain-errors"

// Zone is a domain value that identifies the waters a permit covers.
// Invariant: the value must be one of the supported fishing zones.
//
// Usage: construct via ParseZone at trust boundaries; direct casting bypasses
// validation.
type Zone string

// Supported fishing zones.
const (
	ZoneCoastal  Zone = "coastal"
	ZoneOffshore Zone = "offshore"
	ZoneRiver    Zone = "river"
	ZoneLake     Zone = "lake"
)

// validZones is the single source of truth for valid zones.
var validZones = map[Zone]bool{
	ZoneCoastal:  true,
	ZoneOffshore: true,
	ZoneRiver:    true,
	ZoneLake:     true,
}

// ParseZone constructs a Zone from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseZone(s string) (Zone, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "zone cannot be empty")
	}
	z := Zone(s)
	if !z.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid zone")
	}
	return z, nil
}

// IsValid checks if the zone is one of the supported enum values.
func (z Zone) IsValid() bool {
	return validZones[z]
}

// String returns the string representation of the zone.
func (z Zone) String() string {
	return string(z)
}
