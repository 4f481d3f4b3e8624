package domain

import dErrors "permis/pkg/domain-errors"

// ScanResult is the collapsed outcome recorded for a verification attempt.
// The fine-grained verification status folds into three values so the audit
// trail stays queryable; the reason field on the scan entry keeps the detail.
type ScanResult string

const (
	ScanResultValid   ScanResult = "valid"
	ScanResultInvalid ScanResult = "invalid"
	ScanResultExpired ScanResult = "expired"
)

var validScanResults = map[ScanResult]bool{
	ScanResultValid:   true,
	ScanResultInvalid: true,
	ScanResultExpired: true,
}

// ParseScanResult constructs a ScanResult from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseScanResult(s string) (ScanResult, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "scan result cannot be empty")
	}
	r := ScanResult(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid scan result")
	}
	return r, nil
}

// IsValid checks if the result is one of the supported enum values.
func (r ScanResult) IsValid() bool {
	return validScanResults[r]
}

// String returns the string representation of the result.
func (r ScanResult) String() string {
	return string(r)
}

// VerificationMode records which data path answered a verification: online
// means the authoritative store was consulted, offline means a local snapshot.
type VerificationMode string

const (
	ModeOnline  VerificationMode = "online"
	ModeOffline VerificationMode = "offline"
)

var validModes = map[VerificationMode]bool{
	ModeOnline:  true,
	ModeOffline: true,
}

// ParseVerificationMode constructs a VerificationMode from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseVerificationMode(s string) (VerificationMode, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification mode cannot be empty")
	}
	m := VerificationMode(s)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid verification mode")
	}
	return m, nil
}

// IsValid checks if the mode is one of the supported enum values.
func (m VerificationMode) IsValid() bool {
	return validModes[m]
}

// String returns the string representation of the mode.
func (m VerificationMode) String() string {
	return string(m)
}
