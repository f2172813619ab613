package sealbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/crypt"
	"github.com/sealbox/sealbox/pkg/keymat"
)

const testSecret = "0000000000000000000000000000000000000000000000000000000000000000"

func newTestBox(t *testing.T) *Sealbox {
	t.Helper()

	box, err := New(Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, box.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, box.Close(context.Background()))
	})
	return box
}

func randomSecret(t *testing.T) string {
	t.Helper()
	key := make([]byte, keymat.Size)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.URLEncoding.EncodeToString(key)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestOperationsBeforeStart(t *testing.T) {
	box, err := New(Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = box.EncryptFile(ctx, bytes.NewReader(nil), testSecret, StoreOptions{})
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = box.ListFiles(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestOperationsAfterClose(t *testing.T) {
	box, err := New(Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, box.Start(ctx))
	require.NoError(t, box.Close(ctx))

	_, err = box.ListFiles(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	plaintext := []byte("attack at dawn, bring snacks")
	env, err := box.EncryptFile(ctx, bytes.NewReader(plaintext), testSecret, StoreOptions{
		OriginalName: "orders.txt",
		ContentType:  "text/plain",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "orders.txt", env.OriginalName)
	assert.Equal(t, int64(len(plaintext)), env.PlaintextBytes)
	assert.Greater(t, env.CiphertextBytes, int64(0))
	assert.Len(t, env.KeyFingerprint, crypt.FingerprintLen)

	var out bytes.Buffer
	n, err := box.DecryptFile(ctx, env.ID, testSecret, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(plaintext)), n)
	assert.Equal(t, plaintext, out.Bytes())
}

func TestEncryptDecryptLargeFile(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	// Several streaming chunks, not block-aligned.
	plaintext := make([]byte, 300_000+7)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	env, err := box.EncryptFile(ctx, bytes.NewReader(plaintext), testSecret, StoreOptions{})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = box.DecryptFile(ctx, env.ID, testSecret, &out)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out.Bytes())
}

func TestCompressedRoundTrip(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	// Highly compressible payload.
	plaintext := bytes.Repeat([]byte("sealbox sealbox sealbox "), 10_000)

	env, err := box.EncryptFile(ctx, bytes.NewReader(plaintext), testSecret, StoreOptions{
		OriginalName: "log.txt",
		Compress:     true,
	})
	require.NoError(t, err)

	assert.True(t, env.Compressed)
	assert.Equal(t, int64(len(plaintext)), env.PlaintextBytes)
	assert.Less(t, env.CiphertextBytes, int64(len(plaintext)))

	var out bytes.Buffer
	n, err := box.DecryptFile(ctx, env.ID, testSecret, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(plaintext)), n)
	assert.Equal(t, plaintext, out.Bytes())
}

func TestWrongKeyRejectedByFingerprint(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	env, err := box.EncryptFile(ctx, bytes.NewReader([]byte("secret")), testSecret, StoreOptions{})
	require.NoError(t, err)

	wrongSecret := "0101010101010101010101010101010101010101010101010101010101010101"
	var out bytes.Buffer
	_, err = box.DecryptFile(ctx, env.ID, wrongSecret, &out)
	require.Error(t, err)
	assert.True(t, crypt.IsFingerprintMismatch(err))
	assert.Equal(t, 0, out.Len())
}

// A wrong key on a tampered blob must still fail at the fingerprint gate:
// the cipher pipeline is never reached when the fingerprint does not match.
func TestFingerprintGateBeforeCipher(t *testing.T) {
	dataDir := t.TempDir()
	box, err := New(Config{Paths: []string{dataDir}})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, box.Start(ctx))
	defer box.Close(ctx)

	env, err := box.EncryptFile(ctx, bytes.NewReader([]byte("payload")), testSecret, StoreOptions{})
	require.NoError(t, err)

	// Corrupt the stored blob directly.
	blobPath := filepath.Join(dataDir, "blobs", env.ID+".enc")
	blob, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	blob[0] ^= 0xFF
	require.NoError(t, os.WriteFile(blobPath, blob, 0o600))

	wrongSecret := "0101010101010101010101010101010101010101010101010101010101010101"
	var out bytes.Buffer
	_, err = box.DecryptFile(ctx, env.ID, wrongSecret, &out)
	assert.True(t, crypt.IsFingerprintMismatch(err),
		"wrong key must fail on fingerprint, not authentication")

	// The right key reaches the verifier and reports tampering.
	_, err = box.DecryptFile(ctx, env.ID, testSecret, &out)
	assert.True(t, crypt.IsAuthenticationFailed(err))
	assert.Equal(t, 0, out.Len())
}

func TestInvalidSecret(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	_, err := box.EncryptFile(ctx, bytes.NewReader([]byte("x")), "short", StoreOptions{})
	assert.True(t, keymat.IsInvalidKeyLength(err))
}

func TestListFiles(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	envs, err := box.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, envs)

	for i := 0; i < 3; i++ {
		_, err := box.EncryptFile(ctx, bytes.NewReader([]byte("data")), testSecret, StoreOptions{})
		require.NoError(t, err)
	}

	envs, err = box.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, envs, 3)
}

func TestDeleteFile(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	env, err := box.EncryptFile(ctx, bytes.NewReader([]byte("data")), testSecret, StoreOptions{})
	require.NoError(t, err)

	require.NoError(t, box.DeleteFile(ctx, env.ID))

	var out bytes.Buffer
	_, err = box.DecryptFile(ctx, env.ID, testSecret, &out)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, box.DeleteFile(ctx, env.ID), ErrNotFound)
}

func TestEnvelopeLookup(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	env, err := box.EncryptFile(ctx, bytes.NewReader([]byte("data")), testSecret, StoreOptions{
		OriginalName: "a.bin",
	})
	require.NoError(t, err)

	got, err := box.Envelope(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.IV, got.IV)
	assert.Equal(t, env.Tag, got.Tag)

	_, err = box.Envelope(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenCiphertext(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	plaintext := []byte("raw artifact download")
	env, err := box.EncryptFile(ctx, bytes.NewReader(plaintext), testSecret, StoreOptions{})
	require.NoError(t, err)

	f, gotEnv, err := box.OpenCiphertext(ctx, env.ID)
	require.NoError(t, err)
	defer f.Close()

	ct, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, env.CiphertextBytes, int64(len(ct)))
	assert.Equal(t, env.ID, gotEnv.ID)
	assert.NotContains(t, string(ct), string(plaintext))
}

func TestVerifyAll(t *testing.T) {
	dataDir := t.TempDir()
	box, err := New(Config{Paths: []string{dataDir}, VerifyWorkers: 2})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, box.Start(ctx))
	defer box.Close(ctx)

	var ids []string
	for i := 0; i < 4; i++ {
		env, err := box.EncryptFile(ctx, bytes.NewReader([]byte("content")), testSecret, StoreOptions{})
		require.NoError(t, err)
		ids = append(ids, env.ID)
	}

	results, err := box.VerifyAll(ctx, testSecret)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.OK, "file %s failed verification: %s", r.ID, r.Err)
	}

	// Corrupt one blob and sweep again.
	blobPath := filepath.Join(dataDir, "blobs", ids[0]+".enc")
	blob, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0x01
	require.NoError(t, os.WriteFile(blobPath, blob, 0o600))

	results, err = box.VerifyAll(ctx, testSecret)
	require.NoError(t, err)

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
			assert.Equal(t, ids[0], r.ID)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestVerifyAllEmptyStore(t *testing.T) {
	box := newTestBox(t)

	results, err := box.VerifyAll(context.Background(), testSecret)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVerifyAllWrongKey(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	_, err := box.EncryptFile(ctx, bytes.NewReader([]byte("content")), testSecret, StoreOptions{})
	require.NoError(t, err)

	results, err := box.VerifyAll(ctx, randomSecret(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Err, "fingerprint")
}

func TestSecretEncodingsInterchangeable(t *testing.T) {
	box := newTestBox(t)
	ctx := context.Background()

	key := make([]byte, keymat.Size)
	for i := range key {
		key[i] = byte(i)
	}
	hexSecret := ""
	for _, b := range key {
		hexSecret += string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0xF])
	}
	b64Secret := base64.URLEncoding.EncodeToString(key)

	env, err := box.EncryptFile(ctx, bytes.NewReader([]byte("cross-encoding")), hexSecret, StoreOptions{})
	require.NoError(t, err)

	// The same key in a different encoding opens the file.
	var out bytes.Buffer
	_, err = box.DecryptFile(ctx, env.ID, b64Secret, &out)
	require.NoError(t, err)
	assert.Equal(t, "cross-encoding", out.String())
}
