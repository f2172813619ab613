// Package crypt implements the streaming authenticated-encryption engine:
// HKDF key derivation, key fingerprinting, and the AES-256-CBC + HMAC-SHA256
// encrypt-then-MAC pipelines.
//
// The master key is never used directly. Derive splits it into an encryption
// key and an authentication key; a weakness in one primitive cannot reach the
// other. The MAC always covers IV || ciphertext, and no decrypted byte is
// ever released to a caller before the full-stream tag has verified.
package crypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sealbox/sealbox/pkg/keymat"
)

const (
	// KeySize is the length of each derived subkey.
	KeySize = 32

	// IVSize is the AES-CBC initialization vector length.
	IVSize = 16

	// TagSize is the HMAC-SHA256 authentication tag length.
	TagSize = 32

	// FingerprintLen is the length of a key fingerprint in hex characters.
	FingerprintLen = 16

	// chunkSize bounds per-chunk memory during streaming.
	chunkSize = 64 * 1024

	// deriveInfo is the HKDF context label. Changing it invalidates every
	// stored artifact; it is part of the on-disk format.
	deriveInfo = "sealbox:aes256cbc+mac:v1"

	// fingerprintContext is the fixed message MACed to produce a key
	// fingerprint. Also part of the on-disk format.
	fingerprintContext = "sealbox:key-fingerprint:v1"
)

// Keys holds the derived subkey pair.
type Keys struct {
	Encryption     [KeySize]byte
	Authentication [KeySize]byte
}

// Derive expands the master key into independent encryption and
// authentication subkeys via HKDF-SHA256. Deterministic: the same master key
// always yields the same pair.
func Derive(master keymat.KeyMaterial) Keys {
	r := hkdf.New(sha256.New, master.Bytes(), nil, []byte(deriveInfo))

	var okm [2 * KeySize]byte
	if _, err := io.ReadFull(r, okm[:]); err != nil {
		// HKDF-SHA256 cannot fail for 64 output bytes.
		panic("crypt: hkdf expand: " + err.Error())
	}

	var keys Keys
	copy(keys.Encryption[:], okm[:KeySize])
	copy(keys.Authentication[:], okm[KeySize:])
	return keys
}

// Fingerprint derives a short, non-secret identifier for a master key. It is
// stable across runs and used only to detect wrong-key attempts early; the
// authentication tag remains the authoritative integrity check.
func Fingerprint(master keymat.KeyMaterial) string {
	keys := Derive(master)
	mac := hmac.New(sha256.New, keys.Authentication[:])
	mac.Write([]byte(fingerprintContext))
	return hex.EncodeToString(mac.Sum(nil))[:FingerprintLen]
}
