// Package signedcode defines the verifiable payload embedded in a permit
// card's scannable code and its canonical byte encoding.
//
// The signature at issuance covers the encoded bytes, not the structured
// value, so encoding must be deterministic: independent Encode calls over the
// same logical payload always yield identical bytes. Canonical form follows
// RFC 8785 (JCS): lexicographically sorted keys, no insignificant whitespace,
// no HTML escaping.
package signedcode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CurrentVersion is the protocol version stamped into new payloads. Decode
// rejects versions it does not recognize rather than ignoring them: a future
// version may carry fields this verifier cannot check, and silently trusting
// a partially understood payload would defeat the signature.
const CurrentVersion = 1

// ErrMalformedPayload reports bytes that do not decode to a known payload
// schema. Verification classifies this as an invalid code, never a crash.
var ErrMalformedPayload = errors.New("malformed payload")

// SignedPayload is the minimal fact set a verifier needs. Immutable once
// created.
type SignedPayload struct {
	// RecordID names the permit record the code refers to.
	RecordID string `json:"rid"`
	// IssuedAtMillis is the epoch-millisecond issuance time of the code,
	// bounding the freshness window. Independent of the permit's own
	// expiration date.
	IssuedAtMillis int64 `json:"iat"`
	// Version is the payload protocol version.
	Version int `json:"v"`
}

// Encode serializes the payload to its canonical byte form.
func Encode(p SignedPayload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return canonical, nil
}

// Decode parses canonical payload bytes back into a SignedPayload.
//
// Errors: ErrMalformedPayload (wrapped with the reason) for unknown fields,
// schema mismatches, unrecognized protocol versions, or missing values.
func Decode(data []byte) (SignedPayload, error) {
	var p SignedPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return SignedPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// A second document after the first means the input was not a single
	// canonical object.
	if dec.More() {
		return SignedPayload{}, fmt.Errorf("%w: trailing data", ErrMalformedPayload)
	}

	if p.RecordID == "" {
		return SignedPayload{}, fmt.Errorf("%w: missing record id", ErrMalformedPayload)
	}
	if p.IssuedAtMillis <= 0 {
		return SignedPayload{}, fmt.Errorf("%w: missing issuance timestamp", ErrMalformedPayload)
	}
	if p.Version != CurrentVersion {
		return SignedPayload{}, fmt.Errorf("%w: unsupported protocol version %d", ErrMalformedPayload, p.Version)
	}
	return p, nil
}
