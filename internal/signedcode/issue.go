package signedcode

import (
	"fmt"
	"time"
)

// Signer is the signing capability issuance needs. Satisfied by the signer
// package's keypair.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// Issue mints the scannable code for a record: canonical payload, detached
// signature, URI rendering. issuedAt becomes the start of the code's
// freshness window.
func Issue(s Signer, recordID string, issuedAt time.Time) (string, error) {
	payload := SignedPayload{
		RecordID:       recordID,
		IssuedAtMillis: issuedAt.UnixMilli(),
		Version:        CurrentVersion,
	}
	data, err := Encode(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	signature, err := s.Sign(data)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return FormatCode(data, signature), nil
}
