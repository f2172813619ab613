package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// EncryptResult describes one completed encrypt invocation. It is only
// produced when the whole pipeline succeeded; on failure the caller must
// discard any partially written ciphertext.
type EncryptResult struct {
	IV       [IVSize]byte
	Tag      [TagSize]byte
	BytesIn  int64 // plaintext bytes consumed
	BytesOut int64 // ciphertext bytes written
}

// Encrypt streams plaintext from src through AES-256-CBC with PKCS7 padding
// into dst, computing HMAC-SHA256 over IV || ciphertext as it goes. A fresh
// random IV is generated per call; IVs are never reused, even under the same
// key. The tag is finalized only after the last ciphertext byte is written.
func Encrypt(dst io.Writer, src io.Reader, keys Keys) (EncryptResult, error) {
	var iv [IVSize]byte
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return EncryptResult{}, fmt.Errorf("crypt: generate iv: %w", err)
	}
	return encryptWithIV(dst, src, keys, iv)
}

// encryptWithIV runs the streaming pipeline under a caller-chosen IV. Only
// tests pin the IV; all other callers go through Encrypt.
func encryptWithIV(dst io.Writer, src io.Reader, keys Keys, iv [IVSize]byte) (EncryptResult, error) {
	block, err := aes.NewCipher(keys.Encryption[:])
	if err != nil {
		return EncryptResult{}, fmt.Errorf("crypt: init cipher: %w", err)
	}
	cbc := cipher.NewCBCEncrypter(block, iv[:])
	mac := hmac.New(sha256.New, keys.Authentication[:])
	mac.Write(iv[:])

	res := EncryptResult{IV: iv}

	// carry holds the sub-block remainder between reads; always < BlockSize.
	buf := make([]byte, chunkSize+aes.BlockSize)
	carry := 0
	for {
		n, readErr := src.Read(buf[carry : carry+chunkSize])
		if n > 0 {
			res.BytesIn += int64(n)
			total := carry + n
			usable := total - total%aes.BlockSize
			if usable > 0 {
				cbc.CryptBlocks(buf[:usable], buf[:usable])
				mac.Write(buf[:usable])
				if _, err := dst.Write(buf[:usable]); err != nil {
					return EncryptResult{}, fmt.Errorf("%w: write ciphertext: %v", ErrStreamIO, err)
				}
				res.BytesOut += int64(usable)
			}
			carry = total - usable
			copy(buf, buf[usable:total])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return EncryptResult{}, fmt.Errorf("%w: read plaintext: %v", ErrStreamIO, readErr)
		}
	}

	// PKCS7: the final block always carries padding, a full block's worth
	// when the plaintext length is already block-aligned.
	pad := aes.BlockSize - carry
	for i := 0; i < pad; i++ {
		buf[carry+i] = byte(pad)
	}
	final := buf[:aes.BlockSize]
	cbc.CryptBlocks(final, final)
	mac.Write(final)
	if _, err := dst.Write(final); err != nil {
		return EncryptResult{}, fmt.Errorf("%w: write ciphertext: %v", ErrStreamIO, err)
	}
	res.BytesOut += int64(aes.BlockSize)

	mac.Sum(res.Tag[:0])
	return res, nil
}
