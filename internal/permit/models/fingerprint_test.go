package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "permis/pkg/domain"
)

func baseParams() CreateParams {
	issued := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return CreateParams{
		SerialNumber:   id.SerialNumber("PF-2026-00137"),
		HolderName:     "Jordan Reyes",
		Type:           id.PermitTypeRecreational,
		Zone:           id.ZoneCoastal,
		Species:        []string{"trout", "bass"},
		IssuedBy:       id.NewAgentID(),
		DateIssued:     issued,
		DateExpiration: issued.AddDate(1, 0, 0),
	}
}

func TestFingerprintStableAcrossEquivalentSubmissions(t *testing.T) {
	base, err := Fingerprint(baseParams())
	require.NoError(t, err)

	t.Run("identical params", func(t *testing.T) {
		again, err := Fingerprint(baseParams())
		require.NoError(t, err)
		assert.Equal(t, base, again)
	})

	t.Run("species order ignored", func(t *testing.T) {
		p := baseParams()
		p.Species = []string{"bass", "trout"}
		got, err := Fingerprint(p)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("species casing and duplicates ignored", func(t *testing.T) {
		p := baseParams()
		p.Species = []string{"TROUT", "Bass", "trout "}
		got, err := Fingerprint(p)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("holder whitespace ignored", func(t *testing.T) {
		p := baseParams()
		p.HolderName = "  Jordan Reyes  "
		got, err := Fingerprint(p)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("same date in another location ignored", func(t *testing.T) {
		p := baseParams()
		loc := time.FixedZone("UTC+2", 2*60*60)
		p.DateIssued = p.DateIssued.In(loc)
		got, err := Fingerprint(p)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("idempotency key is not part of identity", func(t *testing.T) {
		// Fingerprint takes no key at all; this documents that the key
		// travels beside the content, never inside it.
		got, err := Fingerprint(baseParams())
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base, err := Fingerprint(baseParams())
	require.NoError(t, err)

	mutations := map[string]func(*CreateParams){
		"serial":     func(p *CreateParams) { p.SerialNumber = "PF-2026-00138" },
		"holder":     func(p *CreateParams) { p.HolderName = "Someone Else" },
		"type":       func(p *CreateParams) { p.Type = id.PermitTypeCommercial },
		"zone":       func(p *CreateParams) { p.Zone = id.ZoneOffshore },
		"species":    func(p *CreateParams) { p.Species = []string{"trout"} },
		"expiration": func(p *CreateParams) { p.DateExpiration = p.DateExpiration.AddDate(0, 0, 1) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := baseParams()
			mutate(&p)
			got, err := Fingerprint(p)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestContentFingerprintMatchesSubmission(t *testing.T) {
	params := baseParams()
	submitted, err := Fingerprint(params)
	require.NoError(t, err)

	p, err := NewPermit(id.NewPermitID(), params, time.Now())
	require.NoError(t, err)

	stored, err := ContentFingerprint(p)
	require.NoError(t, err)
	assert.Equal(t, submitted, stored, "a persisted permit must fingerprint identically to the submission that created it")
}
