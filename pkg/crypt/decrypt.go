package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
)

// Decrypt streams ciphertext from src, verifies the HMAC-SHA256 tag over
// IV || ciphertext, and writes the plaintext to dst. Authenticity is
// established before any plaintext reaches dst:
//
//   - If src is an io.ReadSeeker (the usual case; blob stores hand out
//     files), a first pass recomputes the tag, then a second pass decrypts
//     and streams with bounded memory.
//   - Otherwise the decrypted bytes are held in an internal buffer and
//     flushed only after the tag has verified.
//
// On tag mismatch it returns ErrAuthenticationFailed and dst receives zero
// bytes. Returns the number of plaintext bytes written.
func Decrypt(dst io.Writer, src io.Reader, iv [IVSize]byte, tag [TagSize]byte, keys Keys) (int64, error) {
	if rs, ok := src.(io.ReadSeeker); ok {
		return decryptSeeker(dst, rs, iv, tag, keys)
	}
	return decryptBuffered(dst, src, iv, tag, keys)
}

// Verify recomputes the tag over IV || ciphertext and compares it in constant
// time, without decrypting anything. Used by integrity sweeps.
func Verify(src io.Reader, iv [IVSize]byte, tag [TagSize]byte, keys Keys) error {
	_, err := verifyTag(src, iv, tag, keys)
	return err
}

// verifyTag consumes src, returning the ciphertext length on success.
func verifyTag(src io.Reader, iv [IVSize]byte, tag [TagSize]byte, keys Keys) (int64, error) {
	mac := hmac.New(sha256.New, keys.Authentication[:])
	mac.Write(iv[:])

	var length int64
	buf := make([]byte, chunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			length += int64(n)
			mac.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: read ciphertext: %v", ErrStreamIO, err)
		}
	}

	if !hmac.Equal(mac.Sum(nil), tag[:]) {
		return 0, ErrAuthenticationFailed
	}
	return length, nil
}

// decryptSeeker is the two-pass strategy: verify, rewind, then decrypt with
// bounded memory, unpadding the final block.
func decryptSeeker(dst io.Writer, src io.ReadSeeker, iv [IVSize]byte, tag [TagSize]byte, keys Keys) (int64, error) {
	start, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: seek ciphertext: %v", ErrStreamIO, err)
	}

	ctLen, err := verifyTag(src, iv, tag, keys)
	if err != nil {
		return 0, err
	}
	if ctLen == 0 || ctLen%aes.BlockSize != 0 {
		// A valid tag over a misaligned stream means the artifact was written
		// by a broken pipeline, not tampered with.
		return 0, fmt.Errorf("%w: ciphertext length %d not block-aligned", ErrCorruptPadding, ctLen)
	}

	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: rewind ciphertext: %v", ErrStreamIO, err)
	}

	block, err := aes.NewCipher(keys.Encryption[:])
	if err != nil {
		return 0, fmt.Errorf("crypt: init cipher: %w", err)
	}
	cbc := cipher.NewCBCDecrypter(block, iv[:])

	var written int64
	remaining := ctLen
	buf := make([]byte, chunkSize)

	// Stream everything except the final block, which needs unpadding.
	for remaining > aes.BlockSize {
		n := int64(chunkSize)
		if n > remaining-aes.BlockSize {
			n = remaining - aes.BlockSize
		}
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return written, fmt.Errorf("%w: read ciphertext: %v", ErrStreamIO, err)
		}
		cbc.CryptBlocks(buf[:n], buf[:n])
		if _, err := dst.Write(buf[:n]); err != nil {
			return written, fmt.Errorf("%w: write plaintext: %v", ErrStreamIO, err)
		}
		written += n
		remaining -= n
	}

	final := buf[:aes.BlockSize]
	if _, err := io.ReadFull(src, final); err != nil {
		return written, fmt.Errorf("%w: read ciphertext: %v", ErrStreamIO, err)
	}
	cbc.CryptBlocks(final, final)
	trimmed, err := pkcs7Trim(final)
	if err != nil {
		return written, err
	}
	if len(trimmed) > 0 {
		if _, err := dst.Write(trimmed); err != nil {
			return written, fmt.Errorf("%w: write plaintext: %v", ErrStreamIO, err)
		}
		written += int64(len(trimmed))
	}

	return written, nil
}

// decryptBuffered is the single-pass strategy: decrypt speculatively into an
// internal buffer while accumulating the running MAC, release only once the
// tag has verified.
func decryptBuffered(dst io.Writer, src io.Reader, iv [IVSize]byte, tag [TagSize]byte, keys Keys) (int64, error) {
	block, err := aes.NewCipher(keys.Encryption[:])
	if err != nil {
		return 0, fmt.Errorf("crypt: init cipher: %w", err)
	}
	cbc := cipher.NewCBCDecrypter(block, iv[:])
	mac := hmac.New(sha256.New, keys.Authentication[:])
	mac.Write(iv[:])

	var plain bytes.Buffer
	buf := make([]byte, chunkSize+aes.BlockSize)
	carry := 0
	for {
		n, readErr := src.Read(buf[carry : carry+chunkSize])
		if n > 0 {
			// The MAC covers every ciphertext byte, aligned or not; only
			// aligned prefixes are decrypted.
			mac.Write(buf[carry : carry+n])
			total := carry + n
			usable := total - total%aes.BlockSize
			if usable > 0 {
				cbc.CryptBlocks(buf[:usable], buf[:usable])
				plain.Write(buf[:usable])
			}
			carry = total - usable
			copy(buf, buf[usable:total])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("%w: read ciphertext: %v", ErrStreamIO, readErr)
		}
	}

	if !hmac.Equal(mac.Sum(nil), tag[:]) {
		return 0, ErrAuthenticationFailed
	}
	if carry != 0 || plain.Len() == 0 {
		return 0, fmt.Errorf("%w: ciphertext length not block-aligned", ErrCorruptPadding)
	}

	trimmed, err := pkcs7Trim(plain.Bytes())
	if err != nil {
		return 0, err
	}
	if _, err := dst.Write(trimmed); err != nil {
		return 0, fmt.Errorf("%w: write plaintext: %v", ErrStreamIO, err)
	}
	return int64(len(trimmed)), nil
}
