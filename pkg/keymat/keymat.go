// Package keymat parses opaque master-key secrets into canonical raw key bytes.
//
// A secret may arrive base64-encoded, hex-encoded, or as literal raw bytes.
// Parsing tries the interpretations in that fixed order and accepts the first
// one that decodes to exactly 32 bytes. Acceptance is gated on the decoded
// length, not on decode success alone, so a 32-character raw secret that
// happens to be valid base64 text is never misread.
package keymat

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Size is the canonical master-key length in bytes (AES-256).
const Size = 32

// ErrInvalidKeyLength is returned when no interpretation of a secret yields
// exactly 32 bytes. This is a configuration defect, not a retryable condition.
var ErrInvalidKeyLength = errors.New("keymat: master key must be 32 bytes (base64, hex, or raw)")

// KeyMaterial is a canonicalized 32-byte master secret.
type KeyMaterial [Size]byte

// Encoding identifies which interpretation of a secret produced the key bytes.
type Encoding int

const (
	EncodingInvalid Encoding = iota
	EncodingBase64
	EncodingHex
	EncodingRaw
)

func (e Encoding) String() string {
	switch e {
	case EncodingBase64:
		return "base64"
	case EncodingHex:
		return "hex"
	case EncodingRaw:
		return "raw"
	default:
		return "invalid"
	}
}

// Parse resolves a secret string to key material. The decode cascade is
// base64 (standard, then URL-safe), then hex, then literal raw bytes; the
// first interpretation producing exactly Size bytes wins. The reported
// Encoding is EncodingInvalid exactly when an error is returned.
func Parse(secret string) (KeyMaterial, Encoding, error) {
	if secret == "" {
		return KeyMaterial{}, EncodingInvalid, fmt.Errorf("%w: empty secret", ErrInvalidKeyLength)
	}

	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) == Size {
		return KeyMaterial(decoded), EncodingBase64, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(secret); err == nil && len(decoded) == Size {
		return KeyMaterial(decoded), EncodingBase64, nil
	}

	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) == Size {
		return KeyMaterial(decoded), EncodingHex, nil
	}

	if len(secret) == Size {
		return KeyMaterial([]byte(secret)), EncodingRaw, nil
	}

	return KeyMaterial{}, EncodingInvalid, ErrInvalidKeyLength
}

// Bytes returns a copy of the raw key bytes.
func (k KeyMaterial) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k[:])
	return b
}

// Random generates fresh key material from the system CSPRNG.
func Random() (KeyMaterial, error) {
	var k KeyMaterial
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return KeyMaterial{}, fmt.Errorf("keymat: generate random key: %w", err)
	}
	return k, nil
}

// IsInvalidKeyLength returns true if the error is or wraps ErrInvalidKeyLength.
func IsInvalidKeyLength(err error) bool {
	return errors.Is(err, ErrInvalidKeyLength)
}
