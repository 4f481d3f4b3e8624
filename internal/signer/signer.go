// Package signer holds the process-wide signing key material for permit
// codes. Keys are derived once at startup; a missing or malformed master
// seed is a fatal configuration error, never a per-request failure.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "permis/pkg/domain-errors"
)

// MasterSeedBytes is the required decoded length of the configured master
// seed.
const MasterSeedBytes = 32

// kdfSalt domain-separates permit signing keys from any other key derived
// from the same master seed.
var kdfSalt = []byte("permis-signing-kdf")

// Signer produces detached signatures over canonical payload bytes.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	KeyID() string
}

// Verifier checks a detached signature against the bytes it claims to cover.
type Verifier interface {
	Verify(data, signature []byte) bool
}

// Ed25519KeyPair signs and verifies with a key deterministically derived
// from the master seed. The same seed and key id always yield the same
// keypair, so issuer and verifier agree without distributing private keys.
type Ed25519KeyPair struct {
	keyID string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

// NewFromMasterSeed derives the signing keypair for keyID from a hex-encoded
// 32-byte master seed using HKDF-SHA256.
//
// Errors: CodeInvalidInput when the seed is missing, not hex, or the wrong
// length. Callers treat this as fatal at startup.
func NewFromMasterSeed(seedHex, keyID string) (*Ed25519KeyPair, error) {
	if seedHex == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing master seed is not configured")
	}
	if keyID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key id must not be empty")
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "signing master seed is not valid hex")
	}
	if len(seed) != MasterSeedBytes {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("signing master seed must decode to %d bytes, got %d", MasterSeedBytes, len(seed)))
	}

	kdf := hkdf.New(sha256.New, seed, kdfSalt, []byte(keyID))
	derived := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "derive signing key")
	}

	priv := ed25519.NewKeyFromSeed(derived)
	return &Ed25519KeyPair{
		keyID: keyID,
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
	}, nil
}

// Sign returns the detached Ed25519 signature over data.
func (k *Ed25519KeyPair) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, data), nil
}

// Verify reports whether signature is a valid detached signature over data.
// Tampering with a single byte of either input invalidates the pair.
func (k *Ed25519KeyPair) Verify(data, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(k.pub, data, signature)
}

// KeyID identifies which derived key produced a signature.
func (k *Ed25519KeyPair) KeyID() string {
	return k.keyID
}

// PublicKeyHex exports the verification key for distribution to offline
// verifiers.
func (k *Ed25519KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.pub)
}

// PublicKeyVerifier verifies with a public key alone. Offline scanners carry
// only this side of the keypair.
type PublicKeyVerifier struct {
	pub ed25519.PublicKey
}

// NewVerifierFromHex builds a verify-only side from a hex-encoded Ed25519
// public key.
func NewVerifierFromHex(pubHex string) (*PublicKeyVerifier, error) {
	if pubHex == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification public key is not configured")
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "verification public key is not valid hex")
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("verification public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub)))
	}
	return &PublicKeyVerifier{pub: ed25519.PublicKey(pub)}, nil
}

// Verify reports whether signature is a valid detached signature over data.
func (v *PublicKeyVerifier) Verify(data, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.pub, data, signature)
}
