package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"

	pstrings "permis/pkg/platform/strings"
)

// Fingerprint hashes the logical content of a submission. Two requests with
// equal fingerprints are the same permit regardless of which idempotency key
// or retry carried them; the hash is what lets a second submission be
// acknowledged as a duplicate instead of rejected.
//
// Canonicalization: field names sorted via JCS, holder name trimmed, species
// lowercased, de-duplicated and order-insensitive, dates reduced to UTC date
// precision. Species normalization must match NewPermit so a stored permit
// fingerprints identically to the submission that created it.
func Fingerprint(params CreateParams) (string, error) {
	species := pstrings.DedupeAndTrimLower(params.Species)
	sort.Strings(species)

	content := map[string]any{
		"serial_number":   string(params.SerialNumber),
		"holder_name":     strings.TrimSpace(params.HolderName),
		"permit_type":     string(params.Type),
		"zone":            string(params.Zone),
		"species":         species,
		"date_issued":     params.DateIssued.UTC().Format("2006-01-02"),
		"date_expiration": params.DateExpiration.UTC().Format("2006-01-02"),
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal submission content: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize submission content: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ContentFingerprint recomputes the fingerprint from an already persisted
// permit, for comparing a fresh submission against an existing row.
func ContentFingerprint(p *Permit) (string, error) {
	return Fingerprint(CreateParams{
		SerialNumber:   p.SerialNumber,
		HolderName:     p.HolderName,
		Type:           p.Type,
		Zone:           p.Zone,
		Species:        p.Species,
		DateIssued:     p.DateIssued,
		DateExpiration: p.DateExpiration,
	})
}
