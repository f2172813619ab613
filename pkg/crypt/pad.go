package crypt

import "crypto/aes"

// pkcs7Trim strips PKCS7 padding from the final block of a decrypted buffer.
// The buffer must be block-aligned and non-empty; every encrypted stream ends
// in at least one padding byte.
func pkcs7Trim(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, ErrCorruptPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, ErrCorruptPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrCorruptPadding
		}
	}
	return b[:len(b)-n], nil
}
