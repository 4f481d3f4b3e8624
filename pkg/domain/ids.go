package domain

import (
	"github.com/google/uuid"

	dErrors "permis/pkg/domain-errors"
)

// Typed IDs prevent cross-entity assignment at compile time: a PermitID can
// never be passed where an AgentID is expected. Construct from external input
// via the Parse functions, which enforce the invariant that IDs are valid,
// non-empty, non-nil UUIDs.
type (
	// PermitID identifies an authoritative permit record.
	PermitID uuid.UUID

	// AgentID identifies a field agent account.
	AgentID uuid.UUID

	// ScanID identifies a single scan audit entry.
	ScanID uuid.UUID
)

// parseUUID is the shared validation path for all ID types.
// Errors: CodeInvalidInput for empty, malformed, or nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id too long")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return parsed, nil
}

// ParsePermitID constructs a PermitID from external input.
func ParsePermitID(s string) (PermitID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return PermitID{}, err
	}
	return PermitID(parsed), nil
}

// ParseAgentID constructs an AgentID from external input.
func ParseAgentID(s string) (AgentID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return AgentID{}, err
	}
	return AgentID(parsed), nil
}

// ParseScanID constructs a ScanID from external input.
func ParseScanID(s string) (ScanID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return ScanID{}, err
	}
	return ScanID(parsed), nil
}

// NewPermitID returns a fresh random PermitID.
func NewPermitID() PermitID { return PermitID(uuid.New()) }

// NewAgentID returns a fresh random AgentID.
func NewAgentID() AgentID { return AgentID(uuid.New()) }

// NewScanID returns a fresh random ScanID.
func NewScanID() ScanID { return ScanID(uuid.New()) }

func (id PermitID) String() string { return uuid.UUID(id).String() }
func (id AgentID) String() string  { return uuid.UUID(id).String() }
func (id ScanID) String() string   { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero value.
func (id PermitID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AgentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ScanID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps the canonical UUID form in JSON payloads and applies
// the parse invariants on the way back in.

func (id PermitID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id AgentID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id ScanID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *PermitID) UnmarshalText(b []byte) error {
	parsed, err := ParsePermitID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AgentID) UnmarshalText(b []byte) error {
	parsed, err := ParseAgentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ScanID) UnmarshalText(b []byte) error {
	parsed, err := ParseScanID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
