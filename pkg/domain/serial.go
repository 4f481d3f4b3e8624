package domain

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "permis/pkg/domain-errors"
)

// SerialNumber is the human-readable permit serial printed on the physical
// document, e.g. "PF-2026-00137". Serials are unique across all permits and
// act as the natural key when deduplicating issuance requests.
//
// Shape: PF-<year>-<sequence>, where year is four digits and sequence is
// numeric with at least three digits. Stored uppercase.
type SerialNumber string

const serialPrefix = "PF"

// ParseSerialNumber validates external input and normalizes it to uppercase.
// Errors: CodeInvalidInput when the value does not match the serial shape.
func ParseSerialNumber(s string) (SerialNumber, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "serial number cannot be empty")
	}
	parts := strings.Split(normalized, "-")
	if len(parts) != 3 || parts[0] != serialPrefix {
		return "", dErrors.New(dErrors.CodeInvalidInput, "serial number must have the form PF-<year>-<sequence>")
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 4 || year < 2000 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "serial number year must be four digits")
	}
	if len(parts[2]) < 3 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "serial number sequence must have at least three digits")
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "serial number sequence must be numeric")
	}
	return SerialNumber(normalized), nil
}

// FormatSerialNumber builds a serial from its parts. Intended for issuance
// paths that already hold validated inputs.
func FormatSerialNumber(year, sequence int) SerialNumber {
	return SerialNumber(fmt.Sprintf("%s-%04d-%05d", serialPrefix, year, sequence))
}

func (s SerialNumber) String() string { return string(s) }

// IsValid reports whether the serial would survive a round trip through
// ParseSerialNumber.
func (s SerialNumber) IsValid() bool {
	_, err := ParseSerialNumber(string(s))
	return err == nil
}
