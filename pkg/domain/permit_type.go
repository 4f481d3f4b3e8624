package domain

import dErrors "permis/pkg/domain-errors"

// PermitType is a domain value that identifies the kind of fishing permit.
// Invariant: the value must be one of the supported permit types.
//
// Usage: construct via ParsePermitType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type PermitType string

// Supported permit types.
const (
	PermitTypeRecreational PermitType = "recreational"
	PermitTypeCommercial   PermitType = "commercial"
	PermitTypeScientific   PermitType = "scientific"
	PermitTypeSubsistence  PermitType = "subsistence"
)

// validPermitTypes is the single source of truth for valid permit types.
var validPermitTypes = map[PermitType]bool{
	PermitTypeRecreational: true,
	PermitTypeCommercial:   true,
	PermitTypeScientific:   true,
	PermitTypeSubsistence:  true,
}

// ParsePermitType constructs a PermitType from external input.
//
// Usage: call from handlers/adapters when parsing requests.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParsePermitType(s string) (PermitType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "permit type cannot be empty")
	}
	t := PermitType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid permit type")
	}
	return t, nil
}

// IsValid checks if the permit type is one of the supported enum values.
func (t PermitType) IsValid() bool {
	return validPermitTypes[t]
}

// String returns the string representation of the permit type.
func (t PermitType) String() string {
	return string(t)
}
