package keymat

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBase64Standard(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, Size)
	secret := base64.StdEncoding.EncodeToString(raw)

	key, enc, err := Parse(secret)
	require.NoError(t, err)
	assert.Equal(t, EncodingBase64, enc)
	assert.Equal(t, raw, key.Bytes())
}

func TestParseBase64URLSafe(t *testing.T) {
	// Force bytes that produce '-' and '_' in the URL-safe alphabet.
	raw := bytes.Repeat([]byte{0xFB, 0xEF}, Size/2)
	secret := base64.URLEncoding.EncodeToString(raw)
	require.True(t, strings.ContainsAny(secret, "-_"))

	key, enc, err := Parse(secret)
	require.NoError(t, err)
	assert.Equal(t, EncodingBase64, enc)
	assert.Equal(t, raw, key.Bytes())
}

func TestParseHex(t *testing.T) {
	raw := bytes.Repeat([]byte{0x0F}, Size)
	secret := hex.EncodeToString(raw)

	key, enc, err := Parse(secret)
	require.NoError(t, err)
	assert.Equal(t, EncodingHex, enc)
	assert.Equal(t, raw, key.Bytes())
}

func TestParseRaw(t *testing.T) {
	// 32 literal bytes that are neither valid base64 of length 32 nor hex.
	secret := "!pass-phrase-with-32-characters!"
	require.Len(t, secret, Size)

	key, enc, err := Parse(secret)
	require.NoError(t, err)
	assert.Equal(t, EncodingRaw, enc)
	assert.Equal(t, []byte(secret), key.Bytes())
}

// A 32-character string made only of base64 alphabet characters decodes to
// 24 bytes, so the base64 interpretation is rejected on length and the raw
// interpretation wins.
func TestParseRawBeatsShortBase64(t *testing.T) {
	secret := strings.Repeat("A", Size)

	key, enc, err := Parse(secret)
	require.NoError(t, err)
	assert.Equal(t, EncodingRaw, enc)
	assert.Equal(t, []byte(secret), key.Bytes())
}

// The cascade order is fixed: a secret that is simultaneously valid base64
// and valid raw resolves as base64.
func TestParseBase64BeatsRaw(t *testing.T) {
	// 43 base64 chars + padding decode to exactly 32 bytes, so the string
	// itself is not 32 characters and only base64 applies; instead build a
	// hex/raw collision: 64 hex chars is both valid hex (32 bytes) and too
	// long for raw, so hex wins.
	raw := bytes.Repeat([]byte{0x5A}, Size)
	secret := hex.EncodeToString(raw)
	require.Len(t, secret, 64)

	_, enc, err := Parse(secret)
	require.NoError(t, err)
	assert.Equal(t, EncodingHex, enc)
}

func TestParseInvalid(t *testing.T) {
	cases := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"too short raw", "only-ten-b"},
		{"too long raw", strings.Repeat("x", 33)},
		{"base64 of 16 bytes", base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"hex of 16 bytes", hex.EncodeToString(make([]byte, 16))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, enc, err := Parse(tc.secret)
			require.Error(t, err)
			assert.True(t, IsInvalidKeyLength(err))
			assert.Equal(t, EncodingInvalid, enc)
		})
	}
}

func TestEncodingString(t *testing.T) {
	assert.Equal(t, "base64", EncodingBase64.String())
	assert.Equal(t, "hex", EncodingHex.String())
	assert.Equal(t, "raw", EncodingRaw.String())
	assert.Equal(t, "invalid", EncodingInvalid.String())
}

func TestBytesReturnsCopy(t *testing.T) {
	key, _, err := Parse(hex.EncodeToString(bytes.Repeat([]byte{1}, Size)))
	require.NoError(t, err)

	b := key.Bytes()
	b[0] = 0xFF
	assert.Equal(t, byte(1), key[0])
}

func TestRandom(t *testing.T) {
	a, err := Random()
	require.NoError(t, err)
	b, err := Random()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
