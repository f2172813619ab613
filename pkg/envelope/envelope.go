// Package envelope defines the durable, non-secret metadata record describing
// one encrypted artifact. An envelope and its ciphertext blob only make sense
// together: the IV and tag are meaningless without that exact byte stream.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sealbox/sealbox/pkg/crypt"
)

// ErrMalformed is returned when a stored envelope record cannot be decoded.
var ErrMalformed = errors.New("envelope: malformed record")

// Envelope is created atomically as the terminal step of a successful encrypt
// operation and is immutable thereafter.
type Envelope struct {
	ID             string
	OriginalName   string
	ContentType    string
	PlaintextBytes int64 // best-effort informational; padding is authoritative
	CiphertextBytes int64
	IV             [crypt.IVSize]byte
	Tag            [crypt.TagSize]byte
	CreatedAt      time.Time
	KeyFingerprint string
	Compressed     bool
}

// envelopeJSON is the wire form. IV and tag are URL-safe base64 so the record
// stays human-inspectable while round-tripping byte-for-byte.
type envelopeJSON struct {
	ID              string `json:"id"`
	OriginalName    string `json:"original_name,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
	PlaintextBytes  int64  `json:"plaintext_bytes"`
	CiphertextBytes int64  `json:"ciphertext_bytes"`
	IV              string `json:"iv_b64"`
	Tag             string `json:"tag_b64"`
	CreatedAt       string `json:"created_at"`
	KeyFingerprint  string `json:"key_fingerprint"`
	Compressed      bool   `json:"compressed,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		ID:              e.ID,
		OriginalName:    e.OriginalName,
		ContentType:     e.ContentType,
		PlaintextBytes:  e.PlaintextBytes,
		CiphertextBytes: e.CiphertextBytes,
		IV:              base64.URLEncoding.EncodeToString(e.IV[:]),
		Tag:             base64.URLEncoding.EncodeToString(e.Tag[:]),
		CreatedAt:       e.CreatedAt.UTC().Format(time.RFC3339Nano),
		KeyFingerprint:  e.KeyFingerprint,
		Compressed:      e.Compressed,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w envelopeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	iv, err := base64.URLEncoding.DecodeString(w.IV)
	if err != nil || len(iv) != crypt.IVSize {
		return fmt.Errorf("%w: iv must be %d base64-encoded bytes", ErrMalformed, crypt.IVSize)
	}
	tag, err := base64.URLEncoding.DecodeString(w.Tag)
	if err != nil || len(tag) != crypt.TagSize {
		return fmt.Errorf("%w: tag must be %d base64-encoded bytes", ErrMalformed, crypt.TagSize)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: bad created_at: %v", ErrMalformed, err)
	}

	e.ID = w.ID
	e.OriginalName = w.OriginalName
	e.ContentType = w.ContentType
	e.PlaintextBytes = w.PlaintextBytes
	e.CiphertextBytes = w.CiphertextBytes
	copy(e.IV[:], iv)
	copy(e.Tag[:], tag)
	e.CreatedAt = createdAt
	e.KeyFingerprint = w.KeyFingerprint
	e.Compressed = w.Compressed
	return nil
}
